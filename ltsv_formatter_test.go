package pushtester

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestQuoting(t *testing.T) {
	tf := &LtsvFormatter{}

	checkQuoting := func(q bool, value interface{}) {
		b, _ := tf.Format(logrus.WithField("test", value))
		idx := bytes.Index(b, ([]byte)("test:"))
		cont := bytes.Equal(b[idx+5:idx+6], []byte{'"'})
		if cont != q {
			if q {
				t.Errorf("quoting expected for: %#v", value)
			} else {
				t.Errorf("quoting not expected for: %#v", value)
			}
		}
	}

	checkQuoting(false, "abcd")
	checkQuoting(false, "v1.0")
	checkQuoting(false, "1234567890")
	checkQuoting(true, "/foobar")
	checkQuoting(true, "x y")
	checkQuoting(true, "x\ty")
	checkQuoting(true, "")
	checkQuoting(false, errors.New("invalid"))
	checkQuoting(true, errors.New("invalid argument"))
	checkQuoting(false, 400)
	checkQuoting(false, true)
}

func TestLtsvFields(t *testing.T) {
	tf := &LtsvFormatter{DisableTimestamp: true}
	entry := logrus.WithFields(logrus.Fields{
		"status": 410,
		"reason": "Unregistered",
		"msg":    "clash",
	})
	entry.Message = "HTTP 410"
	entry.Level = logrus.WarnLevel

	b, err := tf.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSuffix(string(b), "\n")
	want := `level:warning` + "\t" + `msg:"HTTP 410"` + "\t" + `fields.msg:clash` + "\t" + `reason:Unregistered` + "\t" + `status:410`
	if line != want {
		t.Errorf("unexpected line:\n got %s\nwant %s", line, want)
	}
	if _, ok := entry.Data["fields.msg"]; ok {
		t.Error("entry data must not be modified")
	}
}

func TestParseLogFormat(t *testing.T) {
	for _, s := range []string{"", "text", "json", "ltsv", "LTSV"} {
		if _, err := ParseLogFormat(s); err != nil {
			t.Errorf("%s: %s", s, err)
		}
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
