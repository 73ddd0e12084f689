package session

import (
	"log/slog"
	"time"
)

// Kind classifies a user-visible notification.
type Kind string

const (
	KindCameraUnavailable Kind = "camera_unavailable"
	KindConnectionError   Kind = "connection_error"
	KindSaveFailed        Kind = "save_failed"
	KindSaved             Kind = "saved"
	KindSent              Kind = "sent"
)

// Notification is a dismissible, non-fatal message for the user.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
	Err     error     `json:"-"`
}

// IsError reports whether the notification reports a failure.
func (n Notification) IsError() bool {
	return n.Err != nil
}

// Notifier receives notifications. Notify must not block or call back into
// the Session.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at warn level for errors and info otherwise.
func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Err != nil {
		logger.Warn(n.Message, "kind", n.Kind, "error", n.Err)
		return
	}
	logger.Info(n.Message, "kind", n.Kind)
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

// Notify forwards n to every non-nil notifier.
func (m MultiNotifier) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

func newNotification(kind Kind, msg string, err error) Notification {
	n := Notification{Kind: kind, Message: msg, Err: err, Time: time.Now()}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}
