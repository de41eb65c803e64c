package host

import (
	"context"
	"sync"

	"github.com/jmcleod/keriauth/message"
)

// TabMessage is a message the Recorder delivered to a tab.
type TabMessage struct {
	TabID   int
	Message message.ToContentScript
}

// Recorder is a Transport and Popup that keeps everything sent through
// it. SendToApp fails with ErrNoListener until SetAppListening(true).
type Recorder struct {
	mu            sync.Mutex
	appListening  bool
	tabs          []TabMessage
	app           []message.ToApp
	popups        []string
	onAppDelivery func(message.ToApp)
}

var (
	_ Transport = (*Recorder)(nil)
	_ Popup     = (*Recorder)(nil)
)

// NewRecorder returns an empty Recorder with no App listening.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetAppListening controls whether SendToApp succeeds.
func (r *Recorder) SetAppListening(listening bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appListening = listening
}

// OnAppDelivery registers fn to run after each message delivered to the
// App, outside the recorder's lock.
func (r *Recorder) OnAppDelivery(fn func(message.ToApp)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAppDelivery = fn
}

func (r *Recorder) SendToTab(_ context.Context, tabID int, msg message.ToContentScript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = append(r.tabs, TabMessage{TabID: tabID, Message: msg})
	return nil
}

func (r *Recorder) SendToApp(_ context.Context, msg message.ToApp) error {
	r.mu.Lock()
	if !r.appListening {
		r.mu.Unlock()
		return ErrNoListener
	}
	r.app = append(r.app, msg)
	fn := r.onAppDelivery
	r.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return nil
}

func (r *Recorder) Open(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.popups = append(r.popups, url)
	return nil
}

// TabMessages returns every message sent to tabs.
func (r *Recorder) TabMessages() []TabMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TabMessage(nil), r.tabs...)
}

// AppMessages returns every message delivered to the App.
func (r *Recorder) AppMessages() []message.ToApp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.ToApp(nil), r.app...)
}

// Popups returns the url of every popup opened.
func (r *Recorder) Popups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.popups...)
}
