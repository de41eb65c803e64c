// Package models defines the records the extension keeps in storage.
package models

import (
	"encoding/json"
	"time"

	"github.com/jmcleod/keriauth/internal/util"
	"github.com/jmcleod/keriauth/store"
)

const (
	// DefaultInactivityTimeoutMinutes applies when preferences are absent
	// or hold a non-positive timeout.
	DefaultInactivityTimeoutMinutes = 20.0
	// MaxInactivityTimeoutMinutes is the hard ceiling on the session timeout.
	MaxInactivityTimeoutMinutes = 20.0
)

// Storage descriptors. Local records survive browser restarts; session
// records do not.
var (
	PreferencesKind       = store.Kind[Preferences]{Name: "Preferences", Scope: store.Local}
	OnboardStateKind      = store.Kind[OnboardState]{Name: "OnboardState", Scope: store.Local}
	ConfigurationKind     = store.Kind[Configuration]{Name: "Configuration", Scope: store.Local}
	WebsiteConfigKind     = store.Kind[WebsiteConfig]{Name: "WebsiteConfig", Scope: store.Local}
	PasscodeKind          = store.Kind[PasscodeModel]{Name: "PasscodeModel", Scope: store.Session}
	SessionExpirationKind = store.Kind[SessionExpiration]{Name: "SessionExpiration", Scope: store.Session}
	ConnectionInfoKind    = store.Kind[ConnectionInfo]{Name: "ConnectionInfo", Scope: store.Session}
	PendingRequestKind    = store.Kind[PendingBwAppRequest]{Name: "PendingBwAppRequests", Scope: store.Session}
)

// Preferences are user settings.
type Preferences struct {
	InactivityTimeoutMinutes float64 `json:"inactivityTimeoutMinutes"`
	SelectedPrefix           string  `json:"selectedPrefix,omitempty"`
	IsDarkTheme              bool    `json:"isDarkTheme,omitempty"`
}

// InactivityTimeout returns the effective session timeout: the default
// when unset, never more than the ceiling.
func (p Preferences) InactivityTimeout() time.Duration {
	minutes := p.InactivityTimeoutMinutes
	if minutes <= 0 {
		minutes = DefaultInactivityTimeoutMinutes
	}
	if minutes > MaxInactivityTimeoutMinutes {
		minutes = MaxInactivityTimeoutMinutes
	}
	return time.Duration(minutes * float64(time.Minute))
}

// OnboardState tracks first-run acknowledgements.
type OnboardState struct {
	IsInstallAcknowledged bool       `json:"isInstallAcknowledged"`
	TosAgreedUtc          *time.Time `json:"tosAgreedUtc,omitempty"`
	PrivacyAgreedUtc      *time.Time `json:"privacyAgreedUtc,omitempty"`
}

// Configuration holds the passcode verifier and the agent connection
// parameters. The passcode itself is never stored here.
type Configuration struct {
	PasscodeHash []byte              `json:"passcodeHash,omitempty"`
	PasscodeSalt []byte              `json:"passcodeSalt,omitempty"`
	KDFParams    util.Argon2idParams `json:"kdfParams"`
	AdminURL     string              `json:"adminUrl,omitempty"`
	BootURL      string              `json:"bootUrl,omitempty"`
}

// HasPasscode reports whether a verifier has been provisioned.
func (c Configuration) HasPasscode() bool {
	return len(c.PasscodeHash) > 0 && len(c.PasscodeSalt) > 0
}

// PasscodeModel is the unlocked passcode for the current browser session.
type PasscodeModel struct {
	Passcode             string    `json:"passcode"`
	SessionExpirationUtc time.Time `json:"sessionExpirationUtc,omitempty"`
}

// SessionExpiration is the single source of truth for when the session
// locks.
type SessionExpiration struct {
	SessionExpirationUtc time.Time `json:"sessionExpirationUtc"`
}

// ConnectionInfo describes the connected KERI agent for this session.
type ConnectionInfo struct {
	AgentPrefix    string    `json:"agentPrefix"`
	AdminURL       string    `json:"adminUrl"`
	ConnectedAtUtc time.Time `json:"connectedAtUtc"`
}

// PendingBwAppRequest is a background-to-App request awaiting a response.
// Payload keeps the original bytes so that key order survives storage.
type PendingBwAppRequest struct {
	RequestID    string          `json:"requestId"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAtUtc time.Time       `json:"createdAtUtc"`
	TabID        *int            `json:"tabId,omitempty"`
	TabURL       string          `json:"tabUrl,omitempty"`
}

// WebsiteConfig is remembered per requesting origin, keyed by origin.
type WebsiteConfig struct {
	Origin           string    `json:"origin"`
	RememberedPrefix string    `json:"rememberedPrefix,omitempty"`
	CreatedAtUtc     time.Time `json:"createdAtUtc"`
}
