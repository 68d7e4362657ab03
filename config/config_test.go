package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kayac/pushtester/apns"
)

func TestLoadTomlConfigFile(t *testing.T) {
	if err := os.Setenv("TEST_PUSHTESTER_TEAM_ID", "TEAM000001"); err != nil {
		t.Error(err)
	}
	if err := os.Setenv("TEST_PUSHTESTER_KEY_FILE", "../test/AuthKey_TEST123456.p8"); err != nil {
		t.Error(err)
	}

	c, err := LoadConfig("../test/pushtester_test.toml")
	if err != nil {
		t.Fatal(err)
	}

	if g, w := c.Apns.TeamID, "TEAM000001"; g != w {
		t.Errorf("not match team id: got %s want %s", g, w)
	}
	if g, w := c.Provider.Port, 38003; g != w {
		t.Errorf("not match port: got %d want %d", g, w)
	}
	if g, w := c.Log.MaxBackups, DefaultLogMaxBackups; g != w {
		t.Errorf("default not applied: got %d want %d", g, w)
	}
	if c.Env() != apns.Sandbox {
		t.Errorf("unexpected environment: %s", c.Env())
	}

	creds, err := c.Credentials()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(creds.PrivateKeyPEM, "PRIVATE KEY") {
		t.Errorf("private key was not loaded")
	}
	if _, err := apns.Sign(creds); err != nil {
		t.Errorf("credentials cannot sign: %s", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(c *Config){
		"port":        func(c *Config) { c.Provider.Port = 80 },
		"connections": func(c *Config) { c.Provider.MaxConnections = MaxConnections + 1 },
		"history":     func(c *Config) { c.Provider.HistorySize = MaxHistorySize + 1 },
		"environment": func(c *Config) { c.Apns.Environment = "staging" },
		"key":         func(c *Config) { c.Apns.KeyFile, c.Apns.PrivateKey = "a.p8", "pem" },
	}
	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(&c)
		if err := c.validateConfig(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	c := DefaultConfig()
	if err := c.validateConfig(); err != nil {
		t.Errorf("default config is invalid: %s", err)
	}
}

func TestReadKeyFile(t *testing.T) {
	if _, err := ReadKeyFile("../test/AuthKey_TEST123456.p8"); err != nil {
		t.Error(err)
	}
	if _, err := ReadKeyFile("../test/pushtester_test.toml"); err == nil {
		t.Error("expected error for a file without a private key")
	}
	if _, err := ReadKeyFile("../test/not_found.p8"); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestCredentialsTrimmed(t *testing.T) {
	c := DefaultConfig()
	c.Apns.KeyID = " KEY \n"
	c.Apns.TeamID = "\tTEAM"
	c.Apns.BundleID = "com.example.app "
	c.Apns.PrivateKey = "pem"
	creds, err := c.Credentials()
	if err != nil {
		t.Fatal(err)
	}
	expected := apns.Credentials{KeyID: "KEY", TeamID: "TEAM", BundleID: "com.example.app", PrivateKeyPEM: "pem"}
	if diff := cmp.Diff(expected, creds); diff != "" {
		t.Errorf("mismatch credentials: %s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "pushtester", "config.toml")

	c := DefaultConfig()
	c.Apns.KeyID = "KEY"
	c.Apns.TeamID = "TEAM"
	c.Apns.BundleID = "com.example.app"
	c.Apns.KeyFile = "/path/to/AuthKey.p8"
	c.Apns.DeviceToken = "abc123"
	c.Apns.Environment = "production"
	if err := c.Save(fn); err != nil {
		t.Fatal(err)
	}

	st, err := os.Stat(fn)
	if err != nil {
		t.Fatal(err)
	}
	if perm := st.Mode().Perm(); perm != 0600 {
		t.Errorf("unexpected permission: %o", perm)
	}

	loaded, err := LoadConfig(fn)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, loaded); diff != "" {
		t.Errorf("mismatch saved config: %s", diff)
	}
}
