package apns

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// APNs endpoints
const (
	SandboxServer    = "https://api.sandbox.push.apple.com"
	ProductionServer = "https://api.push.apple.com"
)

// DefaultPushType is sent as apns-push-type unless the header overrides it.
const DefaultPushType = "alert"

// Environment selects the APNs endpoint.
type Environment int

// Environments
const (
	Sandbox Environment = iota
	Production
)

// BaseURL returns the fixed endpoint of the environment.
func (e Environment) BaseURL() string {
	if e == Production {
		return ProductionServer
	}
	return SandboxServer
}

func (e Environment) String() string {
	switch e {
	case Sandbox:
		return "sandbox"
	case Production:
		return "production"
	}
	return fmt.Sprintf("Environment(%d)", int(e))
}

// ParseEnvironment parses sandbox (or development) and production.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sandbox", "development", "dev", "":
		return Sandbox, nil
	case "production", "prod":
		return Production, nil
	}
	return Sandbox, fmt.Errorf("unknown environment: %s", s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Environment) UnmarshalText(b []byte) error {
	env, err := ParseEnvironment(string(b))
	if err != nil {
		return err
	}
	*e = env
	return nil
}

// Credentials identify the signing key, the team and the app topic.
type Credentials struct {
	KeyID         string `json:"key_id"`
	TeamID        string `json:"team_id"`
	BundleID      string `json:"bundle_id"`
	PrivateKeyPEM string `json:"-"`
}

// Validate checks that all fields are present.
func (c Credentials) Validate() error {
	var missing []string
	if c.KeyID == "" {
		missing = append(missing, "key id")
	}
	if c.TeamID == "" {
		missing = append(missing, "team id")
	}
	if c.BundleID == "" {
		missing = append(missing, "bundle id")
	}
	if c.PrivateKeyPEM == "" {
		missing = append(missing, "private key")
	}
	if len(missing) > 0 {
		return &SigningError{Reason: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// Header for apns request
type Header struct {
	ApnsID         string `json:"apns-id,omitempty"`
	ApnsExpiration string `json:"apns-expiration,omitempty"`
	ApnsPriority   string `json:"apns-priority,omitempty"`
	ApnsCollapseID string `json:"apns-collapse-id,omitempty"`
	ApnsPushType   string `json:"apns-push-type,omitempty"`
}

// Request is a single push attempt.
type Request struct {
	Credentials Credentials
	Environment Environment
	DeviceToken string
	Payload     []byte
	Header      Header
	// SkipAPSCheck accepts any well-formed JSON payload, leaving the aps check to APNs.
	SkipAPSCheck bool
}

// SanitizeDeviceToken removes all whitespace. Tokens copied from device logs are often grouped by spaces.
func SanitizeDeviceToken(token string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, token)
}

// TargetURL returns {base}/3/device/{token}.
func TargetURL(base, token string) (string, error) {
	if err := validateDeviceToken(token); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/3/device/%s", strings.TrimRight(base, "/"), token), nil
}

func validateDeviceToken(token string) error {
	if token == "" {
		return &InvalidRequestError{Reason: "device token is empty"}
	}
	if token == "." || token == ".." {
		return &InvalidRequestError{Reason: "device token is not a path segment"}
	}
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '-', r == '_', r == '.', r == '~':
		default:
			return &InvalidRequestError{Reason: fmt.Sprintf("device token contains illegal character %q", r)}
		}
	}
	return nil
}

func validatePayload(payload []byte, skipAPS bool) error {
	if len(payload) == 0 {
		return &InvalidRequestError{Reason: "payload is empty"}
	}
	if !gjson.ValidBytes(payload) {
		return &InvalidRequestError{Reason: "payload is not valid JSON"}
	}
	if skipAPS {
		return nil
	}
	r := gjson.ParseBytes(payload)
	if !r.IsObject() {
		return &InvalidRequestError{Reason: "payload must be a JSON object"}
	}
	if !r.Get("aps").Exists() {
		return &InvalidRequestError{Reason: `payload has no "aps" key`}
	}
	return nil
}

// DefaultPayload is a minimal alert payload.
const DefaultPayload = `{
  "aps": {
    "alert": {
      "title": "Test Title",
      "body": "Hello from pushtester"
    },
    "sound": "default"
  }
}`

// Payload is Notification Payload
type Payload struct {
	*APS     `json:"aps"`
	Optional map[string]interface{}
}

// APS is a part of Payload
type APS struct {
	Alert            interface{} `json:"alert,omitempty"`
	Badge            int         `json:"badge,omitempty"`
	Sound            string      `json:"sound,omitempty"`
	ContentAvailable int         `json:"content-available,omitempty"`
	MutableContent   int         `json:"mutable-content,omitempty"`
	Category         string      `json:"category,omitempty"`
	ThreadID         string      `json:"thread-id,omitempty"`
}

// Alert is a part of APS
type Alert struct {
	Title        string   `json:"title,omitempty"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Body         string   `json:"body,omitempty"`
	TitleLocKey  string   `json:"title-loc-key,omitempty"`
	TitleLocArgs []string `json:"title-loc-args,omitempty"`
	ActionLocKey string   `json:"action-loc-key,omitempty"`
	LocKey       string   `json:"loc-key,omitempty"`
	LocArgs      []string `json:"loc-args,omitempty"`
	LaunchImage  string   `json:"launch-image,omitempty"`
}

// MarshalJSON for Payload struct.
func (p Payload) MarshalJSON() ([]byte, error) {
	payloadMap := make(map[string]interface{})

	payloadMap["aps"] = p.APS
	for k, v := range p.Optional {
		payloadMap[k] = v
	}

	return json.Marshal(payloadMap)
}

// AlertText returns the alert of the payload as one line: the alert string,
// or title and body of an Alert dictionary.
func (p Payload) AlertText() string {
	if p.APS == nil {
		return ""
	}
	switch a := p.APS.Alert.(type) {
	case string:
		return a
	case map[string]interface{}:
		var parts []string
		for _, k := range []string{"title", "subtitle", "body"} {
			if v, ok := a[k].(string); ok && v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " / ")
	case Alert:
		var parts []string
		for _, v := range []string{a.Title, a.Subtitle, a.Body} {
			if v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " / ")
	}
	return ""
}

// UnmarshalJSON for Payload struct.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var payloadMap map[string]interface{}
	p.APS = &APS{}
	p.Optional = make(map[string]interface{})

	if err := json.Unmarshal(data, &payloadMap); err != nil {
		return err
	}

	apsMap, ok := payloadMap["aps"].(map[string]interface{})
	if !ok {
		return fmt.Errorf(`payload has no "aps" object`)
	}

	for k, v := range apsMap {
		switch k {
		case "alert":
			p.APS.Alert = v
		case "badge":
			if n, ok := v.(float64); ok {
				p.APS.Badge = int(n)
			}
		case "sound":
			p.APS.Sound, _ = v.(string)
		case "category":
			p.APS.Category, _ = v.(string)
		case "thread-id":
			p.APS.ThreadID, _ = v.(string)
		case "content-available":
			if n, ok := v.(float64); ok {
				p.APS.ContentAvailable = int(n)
			}
		case "mutable-content":
			if n, ok := v.(float64); ok {
				p.APS.MutableContent = int(n)
			}
		}
	}

	for k, v := range payloadMap {
		if k != "aps" {
			p.Optional[k] = v
		}
	}

	return nil
}
