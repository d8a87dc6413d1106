package authclient

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/givebase/authclient/storage"
)

const deviceStorageKey = "auth.device"

// DeviceSignals are the stable environment attributes a fingerprint is
// derived from. None of them may vary across calls within the same client
// profile; time-dependent inputs are deliberately excluded.
type DeviceSignals struct {
	UserAgent        string
	Platform         string
	Language         string
	Timezone         string
	ScreenResolution string
	HardwareCount    int
}

// DeviceManager derives and persists the per-client device identity used for
// session binding and audit trails.
type DeviceManager struct {
	storage storage.Store
	logger  *slog.Logger

	now func() time.Time
}

func newDeviceManager(store storage.Store, logger *slog.Logger) *DeviceManager {
	return &DeviceManager{
		storage: store,
		logger:  logger,
		now:     time.Now,
	}
}

// CurrentDevice returns the persisted device identity, or nil when no device
// has been registered. Reading never creates a device as a side effect.
func (m *DeviceManager) CurrentDevice() (*DeviceInfo, error) {
	raw, err := m.storage.Get(deviceStorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading device identity: %w", err)
	}

	var info DeviceInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("decoding device identity: %w", err)
	}
	return &info, nil
}

// RegisterDevice derives a fingerprint from signals the first time and reuses
// the persisted identity on later calls. The derivation is deterministic:
// identical signals always produce the same fingerprint.
func (m *DeviceManager) RegisterDevice(signals DeviceSignals) (*DeviceInfo, error) {
	existing, err := m.CurrentDevice()
	if err != nil {
		m.logger.Warn("discarding unreadable device record", "error", err)
	}
	if existing != nil {
		return existing, nil
	}

	info := &DeviceInfo{
		Fingerprint:  Fingerprint(signals),
		Type:         classifyDevice(signals.UserAgent),
		Trusted:      true,
		RegisteredAt: m.now(),
	}
	if err := m.persist(info); err != nil {
		return nil, err
	}
	return info, nil
}

// SetTrusted updates the trust flag on the registered device. It is the only
// mutation after registration; the fingerprint itself never changes.
func (m *DeviceManager) SetTrusted(trusted bool) error {
	info, err := m.CurrentDevice()
	if err != nil {
		return err
	}
	if info == nil {
		return errors.New("no device registered")
	}
	if info.Trusted == trusted {
		return nil
	}
	info.Trusted = trusted
	return m.persist(info)
}

// Forget removes the persisted device identity.
func (m *DeviceManager) Forget() error {
	return m.storage.Delete(deviceStorageKey)
}

func (m *DeviceManager) persist(info *DeviceInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding device identity: %w", err)
	}
	if err := m.storage.Set(deviceStorageKey, string(raw)); err != nil {
		return fmt.Errorf("persisting device identity: %w", err)
	}
	return nil
}

// Fingerprint deterministically hashes the stable signals into a 64-hex-char
// identifier.
func Fingerprint(signals DeviceSignals) string {
	canonical := strings.Join([]string{
		signals.UserAgent,
		signals.Platform,
		signals.Language,
		signals.Timezone,
		signals.ScreenResolution,
		fmt.Sprintf("%d", signals.HardwareCount),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func classifyDevice(userAgent string) DeviceType {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
