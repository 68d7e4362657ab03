package pushtester

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kayac/pushtester/apns"
	"github.com/kayac/pushtester/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PostedData is a push request of the CLI or of POST /push.
// Empty fields fall back to the config.
type PostedData struct {
	Environment  string          `json:"environment,omitempty"`
	DeviceToken  string          `json:"device_token,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Header       apns.Header     `json:"header,omitempty"`
	SkipAPSCheck bool            `json:"skip_aps_check,omitempty"`
}

// Sender performs attempts with the config credentials and records them.
type Sender struct {
	Conf    config.Config
	Client  *apns.Client
	History *History
	Log     *SessionLog
	Stats   *Stats

	// AutoSave writes the history file after every recorded attempt.
	AutoSave bool
}

// NewSender creates a Sender loading the history file of conf.
func NewSender(conf config.Config) (*Sender, error) {
	h, err := LoadHistory(conf.Provider.HistoryFile, conf.Provider.HistorySize)
	if err != nil {
		return nil, err
	}

	client := apns.NewClient()
	client.Host = conf.Apns.Host
	if conf.Apns.UserAgent != "" {
		client.UserAgent = conf.Apns.UserAgent
	}
	if conf.Apns.InsecureSkipVerify {
		client.NewTransport = func() *http.Transport {
			tr := apns.DefaultTransport()
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			return tr
		}
	}

	st := NewStats(conf)
	return &Sender{
		Conf:     conf,
		Client:   client,
		History:  h,
		Log:      NewSessionLog(),
		Stats:    &st,
		AutoSave: true,
	}, nil
}

// NewRequest merges p with the config into a request.
func (s *Sender) NewRequest(p PostedData) (apns.Request, error) {
	var r apns.Request

	env := s.Conf.Env()
	if p.Environment != "" {
		e, err := apns.ParseEnvironment(p.Environment)
		if err != nil {
			return r, err
		}
		env = e
	}

	creds, err := s.Conf.Credentials()
	if err != nil {
		return r, errors.Wrap(err, "load credentials failed")
	}

	token := p.DeviceToken
	if token == "" {
		token = s.Conf.Apns.DeviceToken
	}

	payload := []byte(p.Payload)
	if len(payload) == 0 {
		payload = []byte(apns.DefaultPayload)
	}

	r = apns.Request{
		Credentials:  creds,
		Environment:  env,
		DeviceToken:  apns.SanitizeDeviceToken(token),
		Payload:      payload,
		Header:       p.Header,
		SkipAPSCheck: p.SkipAPSCheck,
	}
	return r, nil
}

// Send performs one attempt. Every attempt but a canceled one is added to
// the history, and ok is false when nothing was recorded.
func (s *Sender) Send(ctx context.Context, r apns.Request) (rec Record, ok bool) {
	atomic.AddInt64(&s.Stats.InFlight, 1)
	defer atomic.AddInt64(&s.Stats.InFlight, -1)

	fields := logrus.Fields{
		"type":         "sender",
		"environment":  r.Environment.String(),
		"device_token": r.DeviceToken,
	}
	s.Log.Printf("sending to %s (%s)", shortToken(r.DeviceToken), r.Environment)
	LogWithFields(fields).Debugf("Sending a notification")

	start := time.Now()
	o := s.Client.Send(ctx, r)
	fields["elapsed"] = time.Since(start).Seconds()

	line := StatusLine(o)
	if o.Canceled() {
		atomic.AddInt64(&s.Stats.CanceledCount, 1)
		s.Log.Printf("%s", line)
		LogWithFields(fields).Info("Canceled a notification")
		return rec, false
	}

	if o.Succeeded() {
		atomic.AddInt64(&s.Stats.SentCount, 1)
		fields["apns_id"] = o.APNsID()
		LogWithFields(fields).Info(line)
	} else {
		atomic.AddInt64(&s.Stats.ErrCount, 1)
		fields["kind"] = string(o.Failure.Kind)
		if o.Failure.Kind == apns.KindRejected {
			fields["status"] = o.Failure.StatusCode
			fields["reason"] = o.Failure.Reason
		}
		LogWithFields(fields).Warn(line)
	}
	s.Log.Printf("%s", line)

	rec = NewRecord(r.Environment, r.DeviceToken, r.Payload, o, start)
	s.History.Add(rec)
	if s.AutoSave {
		if err := s.History.Save(s.Conf.Provider.HistoryFile); err != nil {
			LogWithFields(logrus.Fields{"type": "sender"}).Warnf("Failed to save history: %s", err)
		}
	}
	return rec, true
}

// Push builds a request from p and sends it.
func (s *Sender) Push(ctx context.Context, p PostedData) (Record, bool, error) {
	r, err := s.NewRequest(p)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := s.Send(ctx, r)
	return rec, ok, nil
}

func shortToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return fmt.Sprintf("%s...%s", token[:6], token[len(token)-6:])
}
