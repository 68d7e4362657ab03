package pushtester

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LtsvFormatter is ltsv format for logrus
type LtsvFormatter struct {
	DisableTimestamp bool
	TimestampFormat  string
	DisableSorting   bool
}

// Format entry
func (f *LtsvFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}
	prefixFieldClashes(data)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	if !f.DisableSorting {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	if !f.DisableTimestamp {
		f.appendKeyValue(b, "time", entry.Time.Format(timestampFormat))
	}
	f.appendKeyValue(b, "level", entry.Level.String())
	if entry.Message != "" {
		f.appendKeyValue(b, "msg", entry.Message)
	}
	for _, key := range keys {
		f.appendKeyValue(b, key, data[key])
	}

	// no tab after the last field
	if b.Len() > 0 {
		b.Truncate(b.Len() - 1)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// needsQuoting reports whether text has a character outside [A-Za-z0-9.-].
func needsQuoting(text string) bool {
	if text == "" {
		return true
	}
	for _, ch := range text {
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.') {
			return true
		}
	}
	return false
}

func (f *LtsvFormatter) appendKeyValue(b *bytes.Buffer, key string, value interface{}) {
	b.WriteString(key)
	b.WriteByte(':')

	switch value := value.(type) {
	case string:
		appendString(b, value)
	case int, int64, int32, uint, uint64, uint32:
		fmt.Fprintf(b, "%d", value)
	case float64, float32:
		fmt.Fprintf(b, "%f", value)
	case bool:
		fmt.Fprintf(b, "%t", value)
	case time.Time:
		b.WriteString(value.Format(time.RFC3339))
	case error:
		appendString(b, value.Error())
	case fmt.Stringer:
		appendString(b, value.String())
	default:
		appendString(b, fmt.Sprintf("%v", value))
	}

	b.WriteByte('\t')
}

// appendString writes s, quoted unless it is a plain token.
func appendString(b *bytes.Buffer, s string) {
	if needsQuoting(s) {
		fmt.Fprintf(b, "%q", s)
	} else {
		b.WriteString(s)
	}
}

func prefixFieldClashes(data logrus.Fields) {
	for _, k := range []string{"time", "msg", "level"} {
		if v, ok := data[k]; ok {
			data["fields."+k] = v
			delete(data, k)
		}
	}
}

// ParseLogFormat returns the logrus formatter of format: text, json or ltsv.
func ParseLogFormat(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	case "ltsv":
		return &LtsvFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown log format: %s", format)
}
