package pushtester

import (
	"strings"
	"testing"
	"time"

	"github.com/kayac/pushtester/apns"
)

func TestStatusLine(t *testing.T) {
	cases := []struct {
		outcome apns.Outcome
		want    string
	}{
		{apns.Outcome{Success: &apns.Success{StatusCode: 200}}, "HTTP 200"},
		{apns.Outcome{Success: &apns.Success{StatusCode: 200, APNsID: "abc"}}, "HTTP 200 (apns-id: abc)"},
		{apns.Outcome{Failure: &apns.Failure{Kind: apns.KindRejected, StatusCode: 500}}, "HTTP 500"},
		{apns.Outcome{Failure: &apns.Failure{Kind: apns.KindRejected, StatusCode: 400, Reason: "NoSuchReason"}}, "HTTP 400 NoSuchReason"},
		{apns.Outcome{Failure: &apns.Failure{Kind: apns.KindCanceled}}, "canceled"},
		{apns.Outcome{Failure: &apns.Failure{Kind: apns.KindTransport, TransportError: "dial tcp: refused"}}, "send failed: transport: dial tcp: refused"},
		{apns.Outcome{Failure: &apns.Failure{Kind: apns.KindSigning, TransportError: "missing team id"}}, "send failed: signing: missing team id"},
		{apns.Outcome{}, "no outcome"},
	}
	for _, c := range cases {
		if got := StatusLine(c.outcome); got != c.want {
			t.Errorf("got %q want %q", got, c.want)
		}
	}

	line := StatusLine(apns.Outcome{Failure: &apns.Failure{Kind: apns.KindRejected, StatusCode: 400, Reason: "BadDeviceToken"}})
	if !strings.HasPrefix(line, "HTTP 400 BadDeviceToken: ") || len(line) <= len("HTTP 400 BadDeviceToken: ") {
		t.Errorf("description expected: %q", line)
	}
}

func TestSessionLog(t *testing.T) {
	l := NewSessionLog()
	l.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC) }

	for i := 0; i < SessionLogLimit+10; i++ {
		l.Printf("line %d", i)
	}
	lines := l.Lines()
	if len(lines) != SessionLogLimit {
		t.Fatalf("unexpected length %d", len(lines))
	}
	if lines[0] != "[15:04:05] line 10" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if lines[len(lines)-1] != "[15:04:05] line 209" {
		t.Errorf("unexpected last line %q", lines[len(lines)-1])
	}
	if !strings.Contains(l.String(), "\n") {
		t.Error("lines must be joined by newlines")
	}
}
