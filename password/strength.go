// Package password holds the client-side credential policy: the strength
// scorer applied before signup and password changes, and the disposable-email
// denylist. This is a pre-flight UX check; the backend applies its own
// authoritative policy.
package password

import (
	"strings"
	"unicode"
)

// MinScore is the lowest acceptable strength score.
const MinScore = 3

// MaxScore caps the scorer output.
const MaxScore = 4

// weakPrefixes are lowercase prefixes that make a password guessable no
// matter what follows them.
var weakPrefixes = []string{
	"password",
	"123456",
	"qwerty",
	"letmein",
	"admin",
	"welcome",
	"iloveyou",
	"abc123",
}

// disposableDomains is the denylist of throwaway email providers.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"getnada.com":       {},
	"sharklasers.com":   {},
	"maildrop.cc":       {},
	"dispostable.com":   {},
}

// Score rates a password 0 through MaxScore. Points: length >= 8, length >=
// 12, lowercase, uppercase, digit, special character. Penalties: a run of
// three or more repeated characters, and any known-weak prefix.
func Score(pw string) int {
	score := 0
	if len(pw) >= 8 {
		score++
	}
	if len(pw) >= 12 {
		score++
	}

	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	for _, has := range []bool{lower, upper, digit, special} {
		if has {
			score++
		}
	}

	if hasRepeatRun(pw, 3) {
		score--
	}
	lowered := strings.ToLower(pw)
	for _, prefix := range weakPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			score -= 3
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Acceptable reports whether pw meets [MinScore].
func Acceptable(pw string) bool {
	return Score(pw) >= MinScore
}

// IsDisposableEmail reports whether the email's domain is on the denylist.
func IsDisposableEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	_, found := disposableDomains[domain]
	return found
}

func hasRepeatRun(pw string, runLen int) bool {
	run := 1
	var prev rune
	for i, r := range pw {
		if i > 0 && r == prev {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}
