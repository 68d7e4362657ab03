package apns

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// https://developer.apple.com/documentation/usernotifications/establishing-a-token-based-connection-to-apns

// Algorithm is the only signing algorithm accepted by APNs.
const Algorithm = "ES256"

// Sign creates a provider authentication token issued now.
func Sign(c Credentials) (string, error) {
	return CreateJWT(c, time.Now())
}

// CreateJWT creates a provider authentication token for c issued at now.
// The signature is the raw r||s form (ES256), which is what APNs verifies.
func CreateJWT(c Credentials, now time.Time) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if !strings.Contains(c.PrivateKeyPEM, "PRIVATE KEY") {
		return "", &SigningError{Reason: "private key is not a PEM encoded PRIVATE KEY"}
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(c.PrivateKeyPEM))
	if err != nil {
		return "", &SigningError{Reason: err.Error()}
	}
	if name := key.Curve.Params().Name; name != "P-256" {
		return "", &SigningError{Reason: "private key curve must be P-256, got " + name}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:   c.TeamID,
		IssuedAt: jwt.NewNumericDate(now),
	})
	// APNs expects exactly alg and kid in the header.
	token.Header = map[string]interface{}{
		"alg": Algorithm,
		"kid": c.KeyID,
	}

	s, err := token.SignedString(key)
	if err != nil {
		return "", &SigningError{Reason: err.Error()}
	}
	return s, nil
}
