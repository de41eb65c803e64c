// Package message defines the messages exchanged between the background
// dispatcher, content scripts and the App.
//
// There are four families, one per direction. A type constant belongs to
// exactly one family and is never valid in another; the router converts
// between families explicitly.
package message

import "encoding/json"

// Content script to dispatcher.
const (
	CsInit                  = "init"
	CsAuthorize             = "/signify/authorize"
	CsAuthorizeAid          = "/signify/authorize/aid"
	CsAuthorizeCredential   = "/signify/authorize/credential"
	CsSignRequest           = "/signify/sign-request"
	CsSignData              = "/signify/sign-data"
	CsCreateDataAttestation = "/signify/credential/create/data-attestation"
)

// Dispatcher to content script.
const (
	BwCsReady         = "ready"
	BwCsReply         = "reply"
	BwCsReplyCanceled = "reply-canceled"
)

// App to dispatcher.
const (
	AppReplyAid              = "/KeriAuth/App/reply-aid"
	AppReplyCredential       = "/KeriAuth/App/reply-credential"
	AppReplySignData         = "/KeriAuth/App/reply-sign-data"
	AppReplyAttestCredential = "/KeriAuth/App/reply-attest-credential"
	AppReplyCanceled         = "/KeriAuth/App/reply-canceled"
	AppReplyApprovedSignHdrs = "/KeriAuth/App/reply-approved-sign-headers"
	AppResponse              = "/KeriAuth/App/response"
	AppClosed                = "/KeriAuth/App/closed"
	AppUserActivity          = "/KeriAuth/App/user-activity"
)

// Dispatcher to App.
const (
	BwAppRequest       = "/KeriAuth/BW/request"
	BwAppSessionLocked = "/KeriAuth/BW/session-locked"
)

// Internal control messages, handled when no family matches.
const (
	InternalLockNow            = "/KeriAuth/internal/lock-now"
	InternalSystemLockDetected = "/KeriAuth/internal/system-lock-detected"
)

// FromContentScript is a message sent by a content script. Payload keeps
// the original bytes: credential data is signed over its key order.
type FromContentScript struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ToContentScript is a message sent by the dispatcher to a tab.
type ToContentScript struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// FromApp is a message sent by an App surface. TabID and TabURL name the
// content script a reply is destined for.
type FromApp struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	TabID     *int            `json:"tabId,omitempty"`
	TabURL    string          `json:"tabUrl,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ToApp is a message sent by the dispatcher to the App. TabID and TabURL
// name the page a request was raised for, when there is one.
type ToApp struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	TabID     *int            `json:"tabId,omitempty"`
	TabURL    string          `json:"tabUrl,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// appToContentScript maps App reply types to the content-script reply
// they are forwarded as. reply-approved-sign-headers is absent: it is
// signed, not forwarded.
var appToContentScript = map[string]string{
	AppReplyAid:              BwCsReply,
	AppReplyCredential:       BwCsReply,
	AppReplySignData:         BwCsReply,
	AppReplyAttestCredential: BwCsReply,
	AppReplyCanceled:         BwCsReplyCanceled,
}

// TranslateReply returns the content-script type an App reply is
// forwarded as.
func TranslateReply(appType string) (string, bool) {
	t, ok := appToContentScript[appType]
	return t, ok
}

// IsContentScriptType reports whether t belongs to the content script to
// dispatcher family.
func IsContentScriptType(t string) bool {
	switch t {
	case CsInit, CsAuthorize, CsAuthorizeAid, CsAuthorizeCredential,
		CsSignRequest, CsSignData, CsCreateDataAttestation:
		return true
	}
	return false
}

// IsAppType reports whether t belongs to the App to dispatcher family.
func IsAppType(t string) bool {
	if _, ok := appToContentScript[t]; ok {
		return true
	}
	switch t {
	case AppReplyApprovedSignHdrs, AppResponse, AppClosed, AppUserActivity:
		return true
	}
	return false
}
