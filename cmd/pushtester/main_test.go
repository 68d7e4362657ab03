package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kayac/pushtester/apns"
	"github.com/kayac/pushtester/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	keyFile, err := filepath.Abs("../../test/AuthKey_TEST123456.p8")
	require.NoError(t, err)

	fn := filepath.Join(dir, "config.toml")
	conf := fmt.Sprintf(`[apns]
key_id = "TEST123456"
team_id = "TEAM000001"
bundle_id = "com.example.pushtester"
key_file = %q
environment = "sandbox"

[provider]
history_file = %q
`, keyFile, filepath.Join(dir, "history.json"))
	require.NoError(t, os.WriteFile(fn, []byte(conf), 0600))
	return fn
}

func startMock(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewUnstartedServer(mock.APNsMockServer(false, 0))
	require.NoError(t, http2.ConfigureServer(ts.Config, nil))
	ts.TLS = ts.Config.TLSConfig
	ts.StartTLS()
	t.Cleanup(ts.Close)
	return ts
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &out))
	assert.Contains(t, out.String(), "pushtester version: ")
}

func TestSendAndHistory(t *testing.T) {
	ts := startMock(t)
	fn := writeTestConfig(t)
	global := []string{"-c", fn, "-env-file", "none", "-log-level", "error"}

	var out bytes.Buffer
	code := run(append(global, "send", "-host", ts.URL, "-insecure", "-token", "aaaa bbbb", "-alert", "hi"), &out)
	assert.Equal(t, 0, code, out.String())
	assert.True(t, strings.HasPrefix(out.String(), "HTTP 200"), out.String())

	out.Reset()
	code = run(append(global, "send", "-host", ts.URL, "-insecure", "-token", "baddevicetoken"), &out)
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(out.String(), "HTTP 400 BadDeviceToken"), out.String())

	out.Reset()
	code = run(append(global, "send", "-host", ts.URL, "-insecure", "-token", "aaaa", "-payload", `{"data":1}`), &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "invalid_request")

	out.Reset()
	require.Equal(t, 0, run(append(global, "history", "-n", "2"), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "aaaa")
	assert.Contains(t, lines[1], "baddevicetoken")

	out.Reset()
	require.Equal(t, 0, run(append(global, "history"), &out))
	assert.Contains(t, out.String(), "\taaaabbbb\thi\tHTTP 200")

	out.Reset()
	require.Equal(t, 0, run(append(global, "history", "-json"), &out))
	assert.Contains(t, out.String(), `"aaaabbbb"`)
}

func TestSendCount(t *testing.T) {
	ts := startMock(t)
	fn := writeTestConfig(t)

	var out bytes.Buffer
	code := run([]string{"-c", fn, "-env-file", "none", "-log-level", "error",
		"send", "-host", ts.URL, "-insecure", "-token", "aaaa", "-count", "3"}, &out)
	assert.Equal(t, 0, code)
	assert.Equal(t, 3, strings.Count(out.String(), "] HTTP 200"), out.String())
}

func TestToken(t *testing.T) {
	fn := writeTestConfig(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"-c", fn, "-env-file", "none", "token"}, &out))
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out.String()), "."))

	out.Reset()
	assert.Equal(t, 1, run([]string{"-c", fn, "-env-file", "none", "token", "-key-file", "../../test/rsa.p8"}, &out))
}

func TestSaveConfig(t *testing.T) {
	fn := writeTestConfig(t)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"-c", fn, "-env-file", "none", "token", "-team-id", "TEAM000002", "-save"}, &out))

	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Contains(t, string(b), `team_id = "TEAM000002"`)
}

func TestPayloadFlags(t *testing.T) {
	pf := payloadFlags{alert: "hello", sound: "default", badge: 2}
	b, err := pf.build(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"alert":"hello","sound":"default","badge":2}}`, string(b))

	pf = payloadFlags{payloadFile: "-"}
	b, err = pf.build(strings.NewReader(`{"aps":{}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"aps":{}}`, string(b))

	pf = payloadFlags{payload: `{"aps":{"alert":"old"},"id":1}`, badge: 3}
	b, err = pf.build(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"alert":"old","badge":3},"id":1}`, string(b))

	pf = payloadFlags{payload: `{"aps":`, alert: "x"}
	_, err = pf.build(nil)
	assert.Error(t, err)

	pf = payloadFlags{}
	b, err = pf.build(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestAlertText(t *testing.T) {
	assert.Equal(t, "hello", alertText(`{"aps":{"alert":"hello"}}`))
	assert.Equal(t, "T / B", alertText(`{"aps":{"alert":{"title":"T","body":"B"}}}`))
	assert.Equal(t, "-", alertText(`{"data":1}`))
	assert.Equal(t, "-", alertText(`{"aps":{"badge":1}}`))
}

func TestApplyFlags(t *testing.T) {
	af := apnsFlags{deviceToken: "ab cd", environment: "production", keyFile: "other.p8"}
	c, err := loadConfig(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	c.Apns.PrivateKey = "pem"
	af.apply(&c)

	assert.Equal(t, "abcd", c.Apns.DeviceToken)
	assert.Equal(t, apns.Production, c.Env())
	assert.Equal(t, "other.p8", c.Apns.KeyFile)
	assert.Empty(t, c.Apns.PrivateKey)
}
