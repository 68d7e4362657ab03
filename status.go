package pushtester

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kayac/pushtester/apns"
)

// SessionLogLimit is the number of lines kept by a SessionLog.
const SessionLogLimit = 200

// StatusLine returns the one line summary of an outcome.
//
//	HTTP 200 (apns-id: 3F0D...)
//	HTTP 400 BadDeviceToken: The specified device token is invalid...
//	send failed: transport: dial tcp ...
func StatusLine(o apns.Outcome) string {
	if o.Success != nil {
		if o.Success.APNsID == "" {
			return fmt.Sprintf("HTTP %d", o.Success.StatusCode)
		}
		return fmt.Sprintf("HTTP %d (apns-id: %s)", o.Success.StatusCode, o.Success.APNsID)
	}
	f := o.Failure
	if f == nil {
		return "no outcome"
	}
	switch f.Kind {
	case apns.KindRejected:
		if f.Reason == "" {
			return fmt.Sprintf("HTTP %d", f.StatusCode)
		}
		desc := apns.Describe(f.Reason)
		if desc == "" {
			return fmt.Sprintf("HTTP %d %s", f.StatusCode, f.Reason)
		}
		return fmt.Sprintf("HTTP %d %s: %s", f.StatusCode, f.Reason, desc)
	case apns.KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("send failed: %s: %s", f.Kind, f.TransportError)
}

// SessionLog keeps the most recent lines of a session, oldest first.
type SessionLog struct {
	mu    sync.Mutex
	lines []string
	now   func() time.Time
}

// NewSessionLog creates an empty session log.
func NewSessionLog() *SessionLog {
	return &SessionLog{now: time.Now}
}

// Printf appends a line prefixed with the wall clock time.
func (l *SessionLog) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", l.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	l.lines = append(l.lines, line)
	if over := len(l.lines) - SessionLogLimit; over > 0 {
		l.lines = append(l.lines[:0:0], l.lines[over:]...)
	}
}

// Lines returns a copy of the lines.
func (l *SessionLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := make([]string, len(l.lines))
	copy(lines, l.lines)
	return lines
}

func (l *SessionLog) String() string {
	return strings.Join(l.Lines(), "\n")
}
