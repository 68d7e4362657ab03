package pushtester

import (
	"time"
)

// Version
const (
	Version = "v0.1.0"
)

// Limit values
const (
	HistoryLimit       = 200     // Maximum of history records, the oldest is evicted first.
	MaxPostedDataBytes = 1 << 16 // Maximum body size of POST /push.
)

// Default values
const (
	// Wait time advertised by Retry-After while a push is in flight.
	RetryAfterSecond = time.Second * 1
	// Time to wait for in-flight pushes when the server stops.
	ShutdownTimeout = time.Second * 35
)

// MockServer is the address of apnsmock started with default flags.
const MockServer = "https://localhost:2195"

// Supports Content-Type
const (
	ApplicationJSON              = "application/json"
	ApplicationXW3FormURLEncoded = "application/x-www-form-urlencoded"
)
