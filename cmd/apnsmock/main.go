package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kayac/pushtester/mock"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

func main() {
	var (
		port              int
		certFile, keyFile string
		verbose           bool
		delay             time.Duration
	)

	flag.IntVar(&port, "port", 2195, "apns mock server port")
	flag.StringVar(&certFile, "cert-file", "", "apns mock server cert file (default: a self-signed certificate)")
	flag.StringVar(&keyFile, "key-file", "", "apns mock server key file")
	flag.BoolVar(&verbose, "verbose", false, "verbose flag")
	flag.DurationVar(&delay, "delay", 0, "response delay")
	flag.Parse()

	mux := mock.APNsMockServer(verbose, delay)
	addr := fmt.Sprintf(":%d", port)

	if certFile != "" {
		srv := &http.Server{Addr: addr, Handler: mux}
		if err := http2.ConfigureServer(srv, nil); err != nil {
			logrus.Fatal(err)
		}
		logrus.Infof("start apnsmock server on %s", addr)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil {
			logrus.Fatal(err)
		}
		return
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		logrus.Fatal(err)
	}
	ts := httptest.NewUnstartedServer(mux)
	ts.Listener.Close()
	ts.Listener = l
	if err := http2.ConfigureServer(ts.Config, nil); err != nil {
		logrus.Fatal(err)
	}
	ts.TLS = ts.Config.TLSConfig
	ts.StartTLS()
	defer ts.Close()
	logrus.Infof("start apnsmock server on %s with a self-signed certificate", ts.URL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
}
