package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/atotto/clipboard"
	pushtester "github.com/kayac/pushtester"
	"github.com/kayac/pushtester/apns"
	"github.com/kayac/pushtester/config"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// apnsFlags override the [apns] section of the config.
type apnsFlags struct {
	keyID, teamID, bundleID, keyFile string
	deviceToken, environment, host   string
	insecure, save, copy             bool
}

func (f *apnsFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.keyID, "key-id", "", "key id of the .p8 private key.")
	fs.StringVar(&f.teamID, "team-id", "", "team id.")
	fs.StringVar(&f.bundleID, "bundle-id", "", "bundle id (apns-topic).")
	fs.StringVar(&f.keyFile, "key-file", "", ".p8 private key file.")
	fs.StringVar(&f.deviceToken, "token", "", "device token.")
	fs.StringVar(&f.environment, "environment", "", "APNs environment. (sandbox or production)")
	fs.StringVar(&f.environment, "E", "", "APNs environment. (sandbox or production)")
	fs.StringVar(&f.host, "host", "", "send to the host instead of APNs. (e.g. "+pushtester.MockServer+")")
	fs.BoolVar(&f.insecure, "insecure", false, "skip verification of the server certificate (apnsmock).")
	fs.BoolVar(&f.save, "save", false, "save the credentials to the config file.")
	fs.BoolVar(&f.copy, "copy", false, "copy the result to the clipboard.")
}

func (f *apnsFlags) apply(conf *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&conf.Apns.KeyID, f.keyID)
	set(&conf.Apns.TeamID, f.teamID)
	set(&conf.Apns.BundleID, f.bundleID)
	set(&conf.Apns.DeviceToken, apns.SanitizeDeviceToken(f.deviceToken))
	set(&conf.Apns.Environment, f.environment)
	set(&conf.Apns.Host, f.host)
	if f.keyFile != "" {
		conf.Apns.KeyFile = expandHome(f.keyFile)
		conf.Apns.PrivateKey = ""
	}
	if f.insecure {
		conf.Apns.InsecureSkipVerify = true
	}
}

func (f *apnsFlags) finish(conf config.Config, confPath, result string) {
	if f.save {
		if err := conf.Save(confPath); err != nil {
			logrus.Warnf("Failed to save config: %s", err)
		} else {
			logrus.Infof("Saved config to %s", confPath)
		}
	}
	if f.copy {
		if err := clipboard.WriteAll(result); err != nil {
			logrus.Warnf("Failed to copy to the clipboard: %s", err)
		}
	}
}

// payloadFlags build the payload of a push.
type payloadFlags struct {
	payload, payloadFile string
	alert, sound         string
	badge                int
	noAPSCheck           bool
	header               apns.Header
}

func (f *payloadFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.payload, "payload", "", "JSON payload.")
	fs.StringVar(&f.payloadFile, "payload-file", "", "JSON payload file. (- for stdin)")
	fs.StringVar(&f.alert, "alert", "", "build a payload with the alert message.")
	fs.StringVar(&f.sound, "sound", "", "sound of the built payload.")
	fs.IntVar(&f.badge, "badge", 0, "badge of the built payload.")
	fs.BoolVar(&f.noAPSCheck, "no-aps-check", false, `send a payload without the "aps" key.`)
	fs.StringVar(&f.header.ApnsPushType, "push-type", "", "apns-push-type. (default: alert)")
	fs.StringVar(&f.header.ApnsPriority, "priority", "", "apns-priority.")
	fs.StringVar(&f.header.ApnsExpiration, "expiration", "", "apns-expiration.")
	fs.StringVar(&f.header.ApnsCollapseID, "collapse-id", "", "apns-collapse-id.")
	fs.StringVar(&f.header.ApnsID, "apns-id", "", "apns-id.")
}

// build returns the payload of -payload or -payload-file patched by
// -alert, -sound and -badge. Without a base payload the flags build an
// apns.Payload, and nil means the default payload.
func (f *payloadFlags) build(stdin io.Reader) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch {
	case f.payload != "":
		b = []byte(f.payload)
	case f.payloadFile == "-":
		b, err = ioutil.ReadAll(stdin)
	case f.payloadFile != "":
		b, err = ioutil.ReadFile(expandHome(f.payloadFile))
	}
	if err != nil {
		return nil, err
	}
	if f.alert == "" && f.sound == "" && f.badge == 0 {
		return b, nil
	}

	if len(b) == 0 {
		p := apns.Payload{APS: &apns.APS{Sound: f.sound, Badge: f.badge}}
		if f.alert != "" {
			p.APS.Alert = f.alert
		}
		return json.Marshal(p)
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	patches := []struct {
		path  string
		value interface{}
		ok    bool
	}{
		{"aps.alert", f.alert, f.alert != ""},
		{"aps.sound", f.sound, f.sound != ""},
		{"aps.badge", f.badge, f.badge != 0},
	}
	for _, p := range patches {
		if !p.ok {
			continue
		}
		if b, err = sjson.SetBytes(b, p.path, p.value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func runSend(args []string, conf config.Config, confPath string, out io.Writer) int {
	var (
		af    apnsFlags
		pf    payloadFlags
		count int
	)
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	af.register(fs)
	pf.register(fs)
	fs.IntVar(&count, "count", 1, "send count.")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	af.apply(&conf)

	payload, err := pf.build(os.Stdin)
	if err != nil {
		logrus.Errorf("Failed to read payload: %s", err)
		return 1
	}

	sender, err := pushtester.NewSender(conf)
	if err != nil {
		logrus.Error(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pushtester.PostedData{
		Payload:      payload,
		Header:       pf.header,
		SkipAPSCheck: pf.noAPSCheck,
	}
	code, line := 0, ""
	for i := 0; i < count; i++ {
		rec, ok, err := sender.Push(ctx, p)
		if err != nil {
			logrus.Error(err)
			return 1
		}
		if !ok {
			fmt.Fprintln(out, "canceled")
			code = 130
			break
		}
		line = rec.StatusLine()
		fmt.Fprintln(out, line)
		code = 0
		if !rec.Outcome.Succeeded() {
			code = 1
		}
	}
	if count > 1 {
		fmt.Fprintln(out, sender.Log.String())
	}

	af.finish(conf, confPath, line)
	return code
}

func runToken(args []string, conf config.Config, confPath string, out io.Writer) int {
	var af apnsFlags
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	af.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	af.apply(&conf)

	creds, err := conf.Credentials()
	if err != nil {
		logrus.Error(err)
		return 1
	}
	token, err := apns.Sign(creds)
	if err != nil {
		logrus.Error(err)
		return 1
	}
	fmt.Fprintln(out, token)

	af.finish(conf, confPath, token)
	return 0
}

func runHistory(args []string, conf config.Config, out io.Writer) int {
	var (
		limit  int
		asJSON bool
	)
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.IntVar(&limit, "n", 20, "number of records to print.")
	fs.BoolVar(&asJSON, "json", false, "print records as JSON.")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	h, err := pushtester.LoadHistory(conf.Provider.HistoryFile, conf.Provider.HistorySize)
	if err != nil {
		logrus.Error(err)
		return 1
	}
	rs := h.Records()
	if limit >= 0 && limit < len(rs) {
		rs = rs[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rs); err != nil {
			logrus.Error(err)
			return 1
		}
		return 0
	}
	for _, r := range rs {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Environment, r.DeviceToken, alertText(r.Payload), r.StatusLine())
	}
	return 0
}

// alertText summarizes a recorded payload, or "-" when it has no alert.
func alertText(payload string) string {
	var p apns.Payload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "-"
	}
	if s := p.AlertText(); s != "" {
		return s
	}
	return "-"
}

func runServe(args []string, conf config.Config) int {
	var (
		af          apnsFlags
		port        int
		enablePprof bool
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	af.register(fs)
	fs.IntVar(&port, "port", 0, "port number (range 1024-65535).")
	fs.BoolVar(&enablePprof, "enable-pprof", false, "serve pprof on a random local port.")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	af.apply(&conf)
	if port != 0 {
		conf.Provider.Port = port
	}

	// for profiling
	if enablePprof {
		dp, err := startPprof()
		if err != nil {
			logrus.Error(err)
			return 1
		}
		logrus.Infof("Debug port (pprof) is %d.", dp)
		conf.Provider.DebugPort = dp
	}

	if err := pushtester.StartServer(conf); err != nil {
		logrus.Error(err)
		return 1
	}
	return 0
}

func startPprof() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	_, p, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	dp, err := strconv.Atoi(p)
	if err != nil {
		return 0, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	go func() {
		logrus.Fatal(http.Serve(l, mux))
	}()
	return dp, nil
}
