package client

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"chatboard/models"
)

var avatarColors = []string{
	"#0066cc",
	"#28a745",
	"#ffc107",
	"#dc3545",
	"#17a2b8",
	"#6f42c1",
	"#fd7e14",
	"#20c997",
	"#e83e8c",
	"#343a40",
}

// hashString is the 31x rolling hash over UTF-16 code units, in 32 bits.
func hashString(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// avatarHash is the same rolling hash, but only the shifted term is cut to
// 32 bits; the running sum is not.
func avatarHash(s string) int64 {
	var h int64
	for _, c := range utf16.Encode([]rune(s)) {
		h = int64(c) + (int64(int32(h)<<5) - h)
	}
	if h < 0 {
		return -h
	}
	return h
}

func abs32(h int32) int64 {
	v := int64(h)
	if v < 0 {
		return -v
	}
	return v
}

// UserIdentifier derives a stable pseudonym like "User-1A2B3C" from an IP.
func UserIdentifier(ip string) string {
	if ip == "" {
		return "Anonymous"
	}
	code := strings.ToUpper(strconv.FormatInt(abs32(hashString(ip)), 36))
	if len(code) > 6 {
		code = code[:6]
	}
	return "User-" + code
}

// DisplayName is the name shown for m: its name, else a pseudonym derived
// from its IP, else "Anonymous".
func DisplayName(m models.Message) string {
	if m.Name != nil && *m.Name != "" {
		return *m.Name
	}
	if m.IPAddress != nil {
		return UserIdentifier(*m.IPAddress)
	}
	return "Anonymous"
}

// AvatarColor picks a palette color from the name, else the IP.
func AvatarColor(m models.Message) string {
	id := "default"
	switch {
	case m.Name != nil && *m.Name != "":
		id = *m.Name
	case m.IPAddress != nil && *m.IPAddress != "":
		id = *m.IPAddress
	}
	return avatarColors[avatarHash(id)%int64(len(avatarColors))]
}

// AvatarInitial is the upper-cased first letter of the name, a letter
// derived from the IP, or "?".
func AvatarInitial(m models.Message) string {
	if m.Name != nil && *m.Name != "" {
		r := []rune(*m.Name)[0]
		return string(unicode.ToUpper(r))
	}
	if m.IPAddress != nil && *m.IPAddress != "" {
		const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		return string(letters[avatarHash(*m.IPAddress)%int64(len(letters))])
	}
	return "?"
}

// FormatTime renders t relative to now: "Just now", "5m ago", "3h ago",
// then a clock time.
func FormatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h ago"
	default:
		return t.Local().Format("03:04 PM")
	}
}
