package pushtester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	stats_api "github.com/fukata/golang-stats-api-handler"
	"github.com/kayac/pushtester/config"
	"github.com/lestrrat-go/server-starter/listener"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

// Provider is the httpHandler of the local push server. It lets one push
// in flight at a time.
type Provider struct {
	Sender *Sender

	busy int32
}

// PushResponse is the body of a successful POST /push.
type PushResponse struct {
	Result     string  `json:"result"`
	StatusLine string  `json:"status_line"`
	Record     *Record `json:"record,omitempty"`
}

// NewProvider creates a Provider sending with s.
func NewProvider(s *Sender) *Provider {
	return &Provider{Sender: s}
}

// Handler returns the mux of the local push server.
func (prov *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/push", prov.PushHandler())
	mux.HandleFunc("/history", prov.HistoryHandler())
	mux.HandleFunc("/log", prov.LogHandler())
	mux.HandleFunc("/stats/app", prov.StatsHandler())
	mux.HandleFunc("/stats/profile", stats_api.Handler)
	return mux
}

// StartServer starts the local push server and blocks until a signal stops it.
func StartServer(conf config.Config) error {
	sender, err := NewSender(conf)
	if err != nil {
		return err
	}
	prov := NewProvider(sender)

	// StartServer listener
	listeners, err := listener.ListenAll()
	if err != nil && err != listener.ErrNoListeningTarget {
		return err
	}

	var lis net.Listener
	if err == listener.ErrNoListeningTarget {
		// Fallback if not running under ServerStarter
		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", conf.Provider.Port))
		if err != nil {
			return err
		}
	} else {
		if l, ok := listeners[0].Addr().(*net.TCPAddr); ok && l.Port != conf.Provider.Port {
			LogWithFields(logrus.Fields{
				"type": "provider",
			}).Infof("'start_server' starts on :%d", l.Port)
			conf.Provider.Port = l.Port
		}
		lis = listeners[0]
	}

	llis := netutil.LimitListener(lis, conf.Provider.MaxConnections)

	LogWithFields(logrus.Fields{
		"type":        "provider",
		"environment": conf.Env().String(),
	}).Infof("Starts provider on :%d ...", conf.Provider.Port)

	srv := &http.Server{Handler: prov.Handler()}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(llis); err != nil && err != http.ErrServerClosed {
			LogWithFields(logrus.Fields{"type": "provider"}).Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
	defer stop()
	<-ctx.Done()

	LogWithFields(logrus.Fields{
		"type": "provider",
	}).Info("Received a signal. Stopping server now...")

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		LogWithFields(logrus.Fields{"type": "provider"}).Warn(err)
	}
	wg.Wait()

	if err := sender.History.Save(conf.Provider.HistoryFile); err != nil {
		return err
	}
	LogWithFields(logrus.Fields{
		"type": "provider",
	}).Info("Stopped server")
	return nil
}

// PushHandler performs one push per request. The push is canceled when
// the client goes away, and a canceled push is not recorded.
func (prov *Provider) PushHandler() http.HandlerFunc {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		st := prov.Sender.Stats
		atomic.AddInt64(&st.RequestCount, 1)

		// Method Not Allowed
		if err := validateMethod(res, req, http.MethodPost); err != nil {
			logrus.Warn(err)
			return
		}

		p, err := decodePostedData(res, req)
		if err != nil {
			status := http.StatusBadRequest
			if err == errUnsupportedMediaType {
				status = http.StatusUnsupportedMediaType
			}
			LogWithFields(logrus.Fields{"type": "provider"}).Warn(err)
			writeReason(res, status, err.Error())
			return
		}

		if !atomic.CompareAndSwapInt32(&prov.busy, 0, 1) {
			atomic.AddInt64(&st.BusyCount, 1)
			setRetryAfter(res, st, "a push is already in flight")
			return
		}
		defer atomic.StoreInt32(&prov.busy, 0)

		rec, ok, err := prov.Sender.Push(req.Context(), p)
		if err != nil {
			writeReason(res, http.StatusBadRequest, err.Error())
			return
		}
		if !ok {
			// nobody to answer
			return
		}
		atomic.StoreInt64(&st.HistorySize, int64(prov.Sender.History.Len()))

		result := "ok"
		if !rec.Outcome.Succeeded() {
			result = "failed"
		}
		writeJSON(res, http.StatusOK, PushResponse{
			Result:     result,
			StatusLine: rec.StatusLine(),
			Record:     &rec,
		})
	})
}

// HistoryHandler returns the records, most recent first. ?limit=N returns the N most recent.
func (prov *Provider) HistoryHandler() http.HandlerFunc {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if err := validateMethod(res, req, http.MethodGet); err != nil {
			logrus.Warn(err)
			return
		}
		rs := prov.Sender.History.Records()
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeReason(res, http.StatusBadRequest, "limit must be a non-negative number")
				return
			}
			if n < len(rs) {
				rs = rs[:n]
			}
		}
		writeJSON(res, http.StatusOK, rs)
	})
}

// LogHandler returns the session log as plain text.
func (prov *Provider) LogHandler() http.HandlerFunc {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if err := validateMethod(res, req, http.MethodGet); err != nil {
			logrus.Warn(err)
			return
		}
		res.Header().Set("Content-Type", "text/plain; charset=utf-8")
		res.WriteHeader(http.StatusOK)
		for _, l := range prov.Sender.Log.Lines() {
			fmt.Fprintln(res, l)
		}
	})
}

func (prov *Provider) StatsHandler() http.HandlerFunc {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if err := validateMethod(res, req, http.MethodGet); err != nil {
			logrus.Warn(err)
			return
		}
		st := prov.Sender.Stats
		atomic.StoreInt64(&st.HistorySize, int64(prov.Sender.History.Len()))
		writeJSON(res, http.StatusOK, st.GetStats())
	})
}

var errUnsupportedMediaType = fmt.Errorf("Unsupported Media Type")

func decodePostedData(res http.ResponseWriter, req *http.Request) (PostedData, error) {
	var p PostedData
	body := http.MaxBytesReader(res, req.Body, MaxPostedDataBytes)

	switch c := req.Header.Get("Content-Type"); c {
	case ApplicationXW3FormURLEncoded:
		req.Body = body
		v := req.FormValue("json")
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return p, fmt.Errorf("%s: %s", err, v)
		}
	case ApplicationJSON:
		if err := json.NewDecoder(body).Decode(&p); err != nil && err != io.EOF {
			return p, err
		}
	default:
		return p, errUnsupportedMediaType
	}
	return p, nil
}

func validateMethod(res http.ResponseWriter, req *http.Request, method string) error {
	if req.Method != method {
		writeReason(res, http.StatusMethodNotAllowed, "Method Not Allowed.")
		return fmt.Errorf("Method Not Allowed: %s", req.Method)
	}
	return nil
}

func setRetryAfter(res http.ResponseWriter, st *Stats, reason string) {
	atomic.StoreInt64(&st.ServiceUnavailableAt, time.Now().Unix())
	// Retry-After is set seconds
	res.Header().Set("Retry-After", fmt.Sprintf("%d", atomic.LoadInt64(&st.RetryAfter)))
	writeReason(res, http.StatusServiceUnavailable, reason)
}

func writeReason(res http.ResponseWriter, status int, reason string) {
	writeJSON(res, status, struct {
		Reason string `json:"reason"`
	}{reason})
}

func writeJSON(res http.ResponseWriter, status int, v interface{}) {
	res.Header().Set("Content-Type", ApplicationJSON)
	res.WriteHeader(status)
	if err := json.NewEncoder(res).Encode(v); err != nil {
		LogWithFields(logrus.Fields{"type": "provider"}).Warn(err)
	}
}
