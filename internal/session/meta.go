package session

import (
	"strings"

	"github.com/samber/lo"

	"toolhost/internal/identity"
)

// ClientMeta is the client-reported environment captured at session start.
// Everything here is self-reported and untrusted; it feeds reporting, never
// authorization.
type ClientMeta struct {
	UserAgent  string `json:"user_agent"`
	Locale     string `json:"locale"`
	Platform   string `json:"platform"`
	ScreenSize string `json:"screen_size"`
	Referrer   string `json:"referrer"`
	EntryURL   string `json:"entry_url"`
	Mobile     bool   `json:"mobile"`

	// Derived from UserAgent; weak substring classification by intent.
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// PseudoUserID derives the coarse uniqueness marker for this client.
func (m ClientMeta) PseudoUserID() string {
	return identity.PseudoUserID(m.UserAgent, m.Locale, m.Platform, m.ScreenSize)
}

// DeviceClass reports the coarse device bucket used in the session record.
func (m ClientMeta) DeviceClass() string {
	return lo.Ternary(m.Mobile, "mobile", "desktop")
}

// WithDerived fills Browser and OS from the user agent. Order matters: Chrome
// ships "Safari" in its UA, Edge and Opera ship "Chrome".
func (m ClientMeta) WithDerived() ClientMeta {
	ua := m.UserAgent
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		m.Browser = "edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		m.Browser = "opera"
	case strings.Contains(ua, "Firefox/"):
		m.Browser = "firefox"
	case strings.Contains(ua, "Chrome/"):
		m.Browser = "chrome"
	case strings.Contains(ua, "Safari/"):
		m.Browser = "safari"
	default:
		m.Browser = "other"
	}
	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		m.OS = "ios"
	case strings.Contains(ua, "Android"):
		m.OS = "android"
	case strings.Contains(ua, "Windows"):
		m.OS = "windows"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		m.OS = "macos"
	case strings.Contains(ua, "Linux"):
		m.OS = "linux"
	default:
		m.OS = "other"
	}
	return m
}
