package mock_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kayac/pushtester/apns"
	"github.com/kayac/pushtester/mock"
	"golang.org/x/net/http2"
)

var (
	ac    *apns.Client
	creds apns.Credentials
)

func TestMain(m *testing.M) {
	runner := func() int {
		ts := httptest.NewUnstartedServer(mock.APNsMockServer(false, 0))
		if err := http2.ConfigureServer(ts.Config, nil); err != nil {
			return 1
		}
		ts.TLS = ts.Config.TLSConfig
		ts.StartTLS()
		defer ts.Close()

		ac = apns.NewClient()
		ac.Host = ts.URL
		ac.NewTransport = func() *http.Transport {
			tr := apns.DefaultTransport()
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			return tr
		}

		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return 1
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return 1
		}
		creds = apns.Credentials{
			KeyID:         "ABC123DEFG",
			TeamID:        "DEF123GHIJ",
			BundleID:      "com.example.app",
			PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		}

		return m.Run()
	}

	os.Exit(runner())
}

func send(token string, payload string) apns.Outcome {
	return ac.Send(context.Background(), apns.Request{
		Credentials: creds,
		DeviceToken: token,
		Payload:     []byte(payload),
	})
}

func TestMockAccepts(t *testing.T) {
	o := send("1122334455667788112233445566778811223344556677881122334455667788", apns.DefaultPayload)
	if !o.Succeeded() {
		t.Fatalf("unexpected failure: %s", o.Err())
	}
	if o.StatusCode() != http.StatusOK || o.APNsID() == "" {
		t.Errorf("unexpected success: %#v", o.Success)
	}
}

func TestMockErrorResponses(t *testing.T) {
	cases := []struct {
		token  string
		status int
		reason string
	}{
		{"baddevicetoken", http.StatusBadRequest, apns.BadDeviceToken.String()},
		{strings.Repeat("a", 101), http.StatusBadRequest, apns.BadDeviceToken.String()},
		{"missingtopic", http.StatusBadRequest, apns.MissingTopic.String()},
		{"unregistered", http.StatusGone, apns.Unregistered.String()},
		{"expiredprovidertoken", http.StatusForbidden, apns.ExpiredProviderToken.String()},
		{"toomanyrequests", http.StatusTooManyRequests, apns.TooManyRequests.String()},
		{"internalservererror", http.StatusInternalServerError, ""},
	}
	for _, c := range cases {
		o := send(c.token, apns.DefaultPayload)
		if o.Failure == nil {
			t.Errorf("%s: expected failure", c.token)
			continue
		}
		if o.Failure.Kind != apns.KindRejected || o.Failure.StatusCode != c.status || o.Failure.Reason != c.reason {
			t.Errorf("%s: unexpected failure %#v", c.token, o.Failure)
		}
		if o.Failure.Body == "" {
			t.Errorf("%s: body must be kept", c.token)
		}
	}
}

func TestMockPayloadTooLarge(t *testing.T) {
	payload := `{"aps":{"alert":"` + strings.Repeat("x", mock.LimitPayloadByteSize) + `"}}`
	o := send("abc123", payload)
	if o.Failure == nil || o.Failure.StatusCode != http.StatusRequestEntityTooLarge || o.Failure.Reason != apns.PayloadTooLarge.String() {
		t.Errorf("unexpected outcome: %#v", o)
	}
}

func TestMockProviderToken(t *testing.T) {
	h := mock.APNsMockServer(false, 0)

	cases := []struct {
		authorization string
		reason        string
	}{
		{"", apns.MissingProviderToken.String()},
		{"bearer x.y.z", apns.InvalidProviderToken.String()},
		{"basic abc", apns.InvalidProviderToken.String()},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodPost, "/3/device/abc123", strings.NewReader(apns.DefaultPayload))
		r.Header.Set("apns-topic", "com.example.app")
		if c.authorization != "" {
			r.Header.Set("authorization", c.authorization)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), c.reason) {
			t.Errorf("%q: unexpected response %d %s", c.authorization, w.Code, w.Body.String())
		}
	}

	old := creds
	token, err := apns.CreateJWT(old, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/3/device/abc123", strings.NewReader(apns.DefaultPayload))
	r.Header.Set("apns-topic", "com.example.app")
	r.Header.Set("authorization", "bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), apns.ExpiredProviderToken.String()) {
		t.Errorf("stale token: unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestMockRejectsGet(t *testing.T) {
	h := mock.APNsMockServer(false, 0)
	r := httptest.NewRequest(http.MethodGet, "/3/device/abc123", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("unexpected status %d", w.Code)
	}
}
