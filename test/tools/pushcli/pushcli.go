package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"strings"

	pushtester "github.com/kayac/pushtester"
	"github.com/kayac/pushtester/apns"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		port        int
		host        string
		count       int
		message     string
		sound       string
		options     string
		token       string
		environment string
	)

	flag.IntVar(&count, "count", 1, "send count")
	flag.IntVar(&port, "port", 8003, "pushtester serve port")
	flag.StringVar(&host, "host", "localhost", "pushtester serve host")
	flag.StringVar(&message, "message", "test notification", "push notification message")
	flag.StringVar(&sound, "sound", "default", "push notification sound (default: 'default')")
	flag.StringVar(&options, "options", "", "options (key1=value1,key2=value2...)")
	flag.StringVar(&token, "token", "", "apns device token (default: the token of the server config)")
	flag.StringVar(&environment, "environment", "", "sandbox or production (default: the environment of the server config)")
	flag.Parse()

	logrus.Infof("host: %s, port: %d, send count: %d", host, port, count)

	opts := map[string]interface{}{}
	if options != "" {
		for _, opt := range strings.Split(options, ",") {
			kv := strings.SplitN(opt, "=", 2)
			if len(kv) != 2 {
				logrus.Fatalf("invalid option: %s", opt)
			}
			opts[kv[0]] = kv[1]
		}
	}

	payload, err := json.Marshal(apns.Payload{
		APS:      &apns.APS{Alert: message, Sound: sound},
		Optional: opts,
	})
	if err != nil {
		logrus.Fatal(err)
	}

	endpoint := fmt.Sprintf("http://%s:%d/push", host, port)
	failed := false
	for i := 0; i < count; i++ {
		res, err := post(endpoint, pushtester.PostedData{
			Environment: environment,
			DeviceToken: token,
			Payload:     payload,
		})
		if err != nil {
			logrus.Error(err)
			os.Exit(1)
		}
		fmt.Println(res.StatusLine)
		if res.Result != "ok" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func post(endpoint string, p pushtester.PostedData) (*pushtester.PushResponse, error) {
	b := &bytes.Buffer{}
	if err := json.NewEncoder(b).Encode(p); err != nil {
		return nil, err
	}
	logrus.Debugln("post data:", b.String())

	resp, err := http.Post(endpoint, pushtester.ApplicationJSON, b)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, out)
	}
	var pr pushtester.PushResponse
	if err := json.Unmarshal(out, &pr); err != nil {
		return nil, fmt.Errorf("%s: %s", err, out)
	}
	return &pr, nil
}
