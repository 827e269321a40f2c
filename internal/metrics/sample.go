package metrics

import "time"

// OpKind classifies a sample as a read or a write against the store.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Sample is the measurement of one completed client operation.
//
// StoreLatency covers only the store round trip; TotalLatency spans the
// whole operation including client-side post-processing.
type Sample struct {
	Kind         OpKind
	Endpoint     string
	StoreLatency time.Duration
	TotalLatency time.Duration
	Success      bool
	Err          error
	Timestamp    time.Time
}

// Overhead is the client-side share of the operation. It is never negative.
func (s Sample) Overhead() time.Duration {
	if s.TotalLatency <= s.StoreLatency {
		return 0
	}
	return s.TotalLatency - s.StoreLatency
}

func micros(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return d.Microseconds()
}
