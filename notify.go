package authclient

// NotificationVariant selects the presentation style for a message.
type NotificationVariant string

const (
	NotifyInfo        NotificationVariant = "info"
	NotifySuccess     NotificationVariant = "success"
	NotifyWarning     NotificationVariant = "warning"
	NotifyDestructive NotificationVariant = "destructive"
)

// Notification is a structured user-facing message. The SDK never renders UI;
// the host application decides how (or whether) to present these.
type Notification struct {
	Title       string
	Description string
	Variant     NotificationVariant
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NoOpNotifier discards notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(Notification) {}
