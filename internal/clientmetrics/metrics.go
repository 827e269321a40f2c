// Package clientmetrics counts traffic on one snapshot stream connection.
// Stream servers and the watch clients share it.
package clientmetrics

import (
	"sync/atomic"
	"time"
)

// Counters tracks connection and message statistics. Safe for concurrent use.
type Counters struct {
	connectedAt atomic.Int64
	messages    atomic.Int64
	bytes       atomic.Int64
	errors      atomic.Int64
}

// New creates a new Counters instance.
func New() *Counters {
	return &Counters{}
}

// MarkConnected records the connection time.
func (c *Counters) MarkConnected() {
	c.connectedAt.Store(time.Now().UnixNano())
}

// Observe counts one message of n bytes.
func (c *Counters) Observe(n int) {
	c.messages.Add(1)
	c.bytes.Add(int64(n))
}

// AddBytes counts bytes that are not a full message, such as keep-alives.
func (c *Counters) AddBytes(n int) {
	c.bytes.Add(int64(n))
}

func (c *Counters) IncrementErrors() {
	c.errors.Add(1)
}

// Reset clears the connection time (used when disconnecting).
func (c *Counters) Reset() {
	c.connectedAt.Store(0)
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	Messages           int64
	Bytes              int64
	Errors             int64
}

func (c *Counters) Snapshot() Snapshot {
	var d time.Duration
	if at := c.connectedAt.Load(); at != 0 {
		d = time.Since(time.Unix(0, at))
	}
	return Snapshot{
		ConnectionDuration: d,
		Messages:           c.messages.Load(),
		Bytes:              c.bytes.Load(),
		Errors:             c.errors.Load(),
	}
}
