package mock

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kayac/pushtester/apns"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const (
	ApplicationJSON        = "application/json"
	LimitApnsTokenByteSize = 100  // Device token byte size.
	LimitPayloadByteSize   = 4096 // Payload byte size.
	// ProviderTokenLifetime is how long APNs accepts a provider token after its iat.
	ProviderTokenLifetime = time.Hour
)

// APNsMockServer returns a handler that behaves like APNs. The answer depends
// on the device token:
//
//	baddevicetoken        400 BadDeviceToken
//	missingtopic          400 MissingTopic
//	unregistered          410 Unregistered (with timestamp)
//	expiredprovidertoken  403 ExpiredProviderToken
//	toomanyrequests       429 TooManyRequests
//	internalservererror   500 with a non JSON body
//
// Any other token is accepted. delay simulates the response time of APNs.
func APNsMockServer(verbose bool, delay time.Duration) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/3/device/", func(w http.ResponseWriter, r *http.Request) {
		if verbose {
			logrus.WithFields(logrus.Fields{
				"proto":  r.Proto,
				"method": r.Method,
				"path":   r.URL.Path,
				"host":   r.RemoteAddr,
			}).Info("apnsmock")
		}

		// sets the response time from apns server
		if delay > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
			time.Sleep(delay + jitter)
		}

		// only allow path which pattern is '/3/device/:token'
		splitPath := strings.Split(r.URL.Path, "/")
		if len(splitPath) != 4 {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, "404 Not found")
			return
		}

		w.Header().Set("Content-Type", ApplicationJSON)
		apnsID := r.Header.Get("apns-id")
		if apnsID == "" {
			apnsID = uuid.NewV4().String()
		}
		w.Header().Set("apns-id", apnsID)

		if r.Method != http.MethodPost {
			writeErrorResponse(w, http.StatusMethodNotAllowed, apns.MethodNotAllowed)
			return
		}
		if code, ok := checkProviderToken(r.Header.Get("authorization")); !ok {
			writeErrorResponse(w, http.StatusForbidden, code)
			return
		}
		if r.Header.Get("apns-topic") == "" {
			writeErrorResponse(w, http.StatusBadRequest, apns.MissingTopic)
			return
		}

		body, err := ioutil.ReadAll(r.Body)
		if err != nil || len(body) == 0 {
			writeErrorResponse(w, http.StatusBadRequest, apns.PayloadEmpty)
			return
		}
		if len(body) > LimitPayloadByteSize {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge, apns.PayloadTooLarge)
			return
		}

		token := splitPath[len(splitPath)-1]
		switch {
		case token == "":
			writeErrorResponse(w, http.StatusBadRequest, apns.MissingDeviceToken)
		case len(([]byte(token))) > LimitApnsTokenByteSize || token == "baddevicetoken":
			writeErrorResponse(w, http.StatusBadRequest, apns.BadDeviceToken)
		case token == "missingtopic":
			writeErrorResponse(w, http.StatusBadRequest, apns.MissingTopic)
		case token == "unregistered":
			// If the value in the :status header is 410, the value of this key is
			// the last time at which APNs confirmed that the device token was
			// no longer valid for the topic.
			writeErrorResponse(w, http.StatusGone, apns.Unregistered)
		case token == "expiredprovidertoken":
			writeErrorResponse(w, http.StatusForbidden, apns.ExpiredProviderToken)
		case token == "toomanyrequests":
			writeErrorResponse(w, http.StatusTooManyRequests, apns.TooManyRequests)
		case token == "internalservererror":
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "internal server error")
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	return mux
}

// checkProviderToken inspects the bearer token without verifying the
// signature, as the mock does not know the public key.
func checkProviderToken(authorization string) (apns.ErrorResponseCode, bool) {
	if authorization == "" {
		return apns.MissingProviderToken, false
	}
	raw := strings.TrimPrefix(authorization, "bearer ")
	if raw == authorization {
		return apns.InvalidProviderToken, false
	}

	var claims jwt.RegisteredClaims
	token, _, err := jwt.NewParser().ParseUnverified(raw, &claims)
	if err != nil {
		return apns.InvalidProviderToken, false
	}
	if token.Method.Alg() != apns.Algorithm || token.Header["kid"] == nil || claims.Issuer == "" {
		return apns.InvalidProviderToken, false
	}
	if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > ProviderTokenLifetime {
		return apns.ExpiredProviderToken, false
	}
	return 0, true
}

func writeErrorResponse(w http.ResponseWriter, status int, code apns.ErrorResponseCode) {
	er := apns.ErrorResponse{
		Reason: code.String(),
	}
	if status == http.StatusGone {
		er.Timestamp = time.Now().Unix() * 1000
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(er)
}
