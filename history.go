package pushtester

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kayac/pushtester/apns"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Record is an immutable snapshot of one send attempt.
type Record struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	Environment apns.Environment `json:"environment"`
	DeviceToken string           `json:"device_token"`
	Payload     string           `json:"payload"`
	Outcome     apns.Outcome     `json:"outcome"`
}

// NewRecord creates a record of an attempt made at now.
func NewRecord(env apns.Environment, deviceToken string, payload []byte, o apns.Outcome, now time.Time) Record {
	return Record{
		ID:          uuid.NewV4().String(),
		Timestamp:   now,
		Environment: env,
		DeviceToken: deviceToken,
		Payload:     string(payload),
		Outcome:     o,
	}
}

// StatusLine of the record outcome.
func (r Record) StatusLine() string {
	return StatusLine(r.Outcome)
}

// History is an append-only log of records, most recent first.
type History struct {
	mu      sync.RWMutex
	records []Record
	limit   int

	// saveMu is held from the snapshot until the rename, so a newer
	// snapshot is never overwritten by an older one.
	saveMu sync.Mutex
}

// NewHistory creates an empty history keeping at most limit records.
func NewHistory(limit int) *History {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	return &History{
		records: make([]Record, 0, limit),
		limit:   limit,
	}
}

// Add puts r at the head and evicts the oldest records over the limit.
func (h *History) Add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, Record{})
	copy(h.records[1:], h.records)
	h.records[0] = r
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
}

// Records returns a copy of the records, most recent first.
func (h *History) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs := make([]Record, len(h.records))
	copy(rs, h.records)
	return rs
}

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// LoadHistory reads a history saved by Save. A missing file is an empty history.
func LoadHistory(fn string, limit int) (*History, error) {
	h := NewHistory(limit)
	b, err := ioutil.ReadFile(fn)
	if os.IsNotExist(err) {
		return h, nil
	} else if err != nil {
		return h, errors.Wrap(err, "read history failed")
	}

	var rs []Record
	if err := json.Unmarshal(b, &rs); err != nil {
		return h, errors.Wrapf(err, "decode history %s failed", fn)
	}
	if len(rs) > h.limit {
		rs = rs[:h.limit]
	}
	h.records = append(h.records, rs...)
	return h, nil
}

// Save writes the history to fn. The file is replaced atomically.
func (h *History) Save(fn string) error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	b, err := json.MarshalIndent(h.Records(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode history failed")
	}
	if err := os.MkdirAll(filepath.Dir(fn), 0700); err != nil {
		return errors.Wrap(err, "create history directory failed")
	}
	tmp, err := ioutil.TempFile(filepath.Dir(fn), ".history-*")
	if err != nil {
		return errors.Wrap(err, "create history file failed")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write history failed")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write history failed")
	}
	return os.Rename(tmp.Name(), fn)
}
