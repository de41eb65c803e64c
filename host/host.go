// Package host declares the browser-platform capabilities the dispatcher
// depends on, with in-process implementations for tests and headless use.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/jmcleod/keriauth/message"
)

// ErrNoListener is returned by a Transport when nothing is listening on
// the other end. Callers sending best-effort messages ignore it.
var ErrNoListener = errors.New("no listener")

// Alarms schedules named one-shot wake-ups. Creating an alarm replaces
// any existing alarm with the same name.
type Alarms interface {
	Create(ctx context.Context, name string, when time.Time) error
	Clear(ctx context.Context, name string) error
}

// Permissions reports the host-permission origin patterns the user has
// granted, such as "https://example.com/*".
type Permissions interface {
	GrantedOrigins(ctx context.Context) ([]string, error)
}

// Transport delivers messages to other extension contexts. Delivery is
// best effort and at most once.
type Transport interface {
	SendToTab(ctx context.Context, tabID int, msg message.ToContentScript) error
	SendToApp(ctx context.Context, msg message.ToApp) error
}

// Popup opens the extension's action popup at url, relative to the
// extension root.
type Popup interface {
	Open(ctx context.Context, url string) error
}
