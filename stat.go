package pushtester

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/kayac/pushtester/config"
)

// Stats stores metrics
type Stats struct {
	Pid                  int   `json:"pid"`
	DebugPort            int   `json:"debug_port"`
	Uptime               int64 `json:"uptime"`
	StartAt              int64 `json:"start_at"`
	ServiceUnavailableAt int64 `json:"su_at"`
	Period               int64 `json:"period"`
	RetryAfter           int64 `json:"retry_after"`
	RequestCount         int64 `json:"req_count"`
	SentCount            int64 `json:"sent_count"`
	ErrCount             int64 `json:"err_count"`
	CanceledCount        int64 `json:"canceled_count"`
	BusyCount            int64 `json:"busy_count"`
	InFlight             int64 `json:"in_flight"`
	HistorySize          int64 `json:"history_size"`
}

// NewStats initialize Stats
func NewStats(conf config.Config) Stats {
	return Stats{
		Pid:        os.Getpid(),
		DebugPort:  conf.Provider.DebugPort,
		StartAt:    time.Now().Unix(),
		RetryAfter: int64(RetryAfterSecond / time.Second),
	}
}

// GetStats returns a snapshot of the stats
func (st *Stats) GetStats() Stats {
	now := time.Now().Unix()
	uptime := now - atomic.LoadInt64(&st.StartAt)
	period := uptime - atomic.SwapInt64(&st.Uptime, uptime)

	return Stats{
		Pid:                  st.Pid,
		DebugPort:            st.DebugPort,
		Uptime:               uptime,
		StartAt:              atomic.LoadInt64(&st.StartAt),
		ServiceUnavailableAt: atomic.LoadInt64(&st.ServiceUnavailableAt),
		Period:               period,
		RetryAfter:           atomic.LoadInt64(&st.RetryAfter),
		RequestCount:         atomic.LoadInt64(&st.RequestCount),
		SentCount:            atomic.LoadInt64(&st.SentCount),
		ErrCount:             atomic.LoadInt64(&st.ErrCount),
		CanceledCount:        atomic.LoadInt64(&st.CanceledCount),
		BusyCount:            atomic.LoadInt64(&st.BusyCount),
		InFlight:             atomic.LoadInt64(&st.InFlight),
		HistorySize:          atomic.LoadInt64(&st.HistorySize),
	}
}
