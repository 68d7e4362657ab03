package pushtester

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// LogWithFields wraps logrus's WithFields and adds the caller position.
// fields is not modified.
func LogWithFields(fields logrus.Fields) *logrus.Entry {
	_, file, line, _ := runtime.Caller(1)

	f := make(logrus.Fields, len(fields)+2)
	for k, v := range fields {
		f[k] = v
	}
	f["file"] = filepath.Base(file)
	f["line"] = fmt.Sprintf("%d", line)

	return logrus.WithFields(f)
}
