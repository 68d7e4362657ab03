package apns

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/net/http2"
)

const (
	// ClientTimeout bounds one whole exchange with APNs.
	ClientTimeout = time.Second * 30
	// DefaultUserAgent identifies the tool to APNs.
	DefaultUserAgent = "pushtester/1.0"
	// ApplicationJSON is the content type of every push.
	ApplicationJSON = "application/json"
)

// DefaultTransport returns the transport used when Client.NewTransport is nil.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: time.Second * 10,
	}
}

// Client is apns client. It keeps no state between sends: every Send gets its
// own transport and a freshly signed provider token, so a Client may be used
// from many goroutines.
type Client struct {
	// Host replaces the environment base URL when set (mock servers).
	Host      string
	UserAgent string
	Timeout   time.Duration
	// NewTransport builds the transport of a single send. It should return a
	// new transport on every call; a transport already configured for h2 is
	// used as is.
	NewTransport func() *http.Transport

	now func() time.Time
}

// NewClient returns a Client with the default timeout and user agent.
func NewClient() *Client {
	return &Client{
		UserAgent: DefaultUserAgent,
		Timeout:   ClientTimeout,
	}
}

// Send performs exactly one POST to APNs and classifies the result.
func (ac *Client) Send(ctx context.Context, r Request) Outcome {
	token, err := CreateJWT(r.Credentials, ac.clock())
	if err != nil {
		return newFailure(err)
	}

	req, err := ac.NewRequest(ctx, r, token)
	if err != nil {
		return newFailure(err)
	}

	client, tr, err := ac.newConnection()
	if err != nil {
		return newFailure(&InvalidRequestError{Reason: "configure transport: " + err.Error()})
	}
	defer tr.CloseIdleConnections()

	res, err := client.Do(req)
	if err != nil {
		return newFailure(&TransportError{Err: err, Canceled: ctx.Err() != nil})
	}
	defer res.Body.Close()

	data, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return newFailure(&TransportError{Err: err, Canceled: ctx.Err() != nil})
	}

	body := ""
	if utf8.Valid(data) {
		body = string(data)
	}
	apnsID := res.Header.Get("apns-id")

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return Outcome{
			Success: &Success{
				StatusCode: res.StatusCode,
				APNsID:     apnsID,
				Body:       body,
			},
		}
	}

	return newFailure(&RejectedError{
		StatusCode: res.StatusCode,
		Reason:     decodeErrorReason(data),
		APNsID:     apnsID,
		Body:       body,
	})
}

// NewRequest creates request for apns
func (ac *Client) NewRequest(ctx context.Context, r Request, token string) (*http.Request, error) {
	base := r.Environment.BaseURL()
	if ac.Host != "" {
		base = ac.Host
	}
	u, err := TargetURL(base, r.DeviceToken)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(r.Payload, r.SkipAPSCheck); err != nil {
		return nil, err
	}

	nreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(r.Payload))
	if err != nil {
		return nil, &InvalidRequestError{Reason: err.Error()}
	}

	h := r.Header
	if h.ApnsID != "" {
		nreq.Header.Set("apns-id", h.ApnsID)
	}
	if h.ApnsExpiration != "" {
		nreq.Header.Set("apns-expiration", h.ApnsExpiration)
	}
	if h.ApnsPriority != "" {
		nreq.Header.Set("apns-priority", h.ApnsPriority)
	}
	if h.ApnsCollapseID != "" {
		nreq.Header.Set("apns-collapse-id", h.ApnsCollapseID)
	}
	pushType := h.ApnsPushType
	if pushType == "" {
		pushType = DefaultPushType
	}

	nreq.Header.Set("authorization", "bearer "+token)
	nreq.Header.Set("apns-topic", r.Credentials.BundleID)
	nreq.Header.Set("apns-push-type", pushType)
	nreq.Header.Set("content-type", ApplicationJSON)

	ua := ac.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	nreq.Header.Set("user-agent", ua)

	return nreq, nil
}

// newConnection builds an isolated http2 client: no cookie jar, no pooled connections.
func (ac *Client) newConnection() (*http.Client, *http.Transport, error) {
	var tr *http.Transport
	if ac.NewTransport != nil {
		tr = ac.NewTransport()
	} else {
		tr = DefaultTransport()
	}
	if _, ok := tr.TLSNextProto[http2.NextProtoTLS]; !ok {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, nil, err
		}
	}

	timeout := ac.Timeout
	if timeout <= 0 {
		timeout = ClientTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}, tr, nil
}

func (ac *Client) clock() time.Time {
	if ac.now != nil {
		return ac.now()
	}
	return time.Now()
}
