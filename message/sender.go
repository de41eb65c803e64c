package message

import (
	"fmt"
	"net/url"
	"strings"
)

// Sender is what the transport reports about the context that sent a
// message. It is never persisted.
type Sender struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	TabID *int   `json:"tabId,omitempty"`
}

// Origin returns the scheme://host[:port] origin of rawURL, lower-cased,
// with the default port for the scheme omitted.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port, nil
	}
	return scheme + "://" + host, nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
