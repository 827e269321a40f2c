// Package sse writes and reads text/event-stream snapshot feeds.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/torosent/kvscope/internal/clientmetrics"
)

// DefaultKeepAlive is how often an idle stream sends a comment line.
const DefaultKeepAlive = 15 * time.Second

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// Event represents a Server-Sent Event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// StatusError is returned when the SSE endpoint responds with a non-200 status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Writer emits events on an HTTP response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	metrics *clientmetrics.Counters
}

// NewWriter sets the event-stream headers and sends the status line.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	m := clientmetrics.New()
	m.MarkConnected()
	return &Writer{w: w, flusher: flusher, metrics: m}, nil
}

// Send writes one event. Multi-line data becomes several data fields.
func (w *Writer) Send(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Event)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	n, err := io.WriteString(w.w, b.String())
	if err != nil {
		w.metrics.IncrementErrors()
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	w.metrics.Observe(n)
	return nil
}

// Comment writes a comment line, which clients ignore.
func (w *Writer) Comment(text string) error {
	n, err := fmt.Fprintf(w.w, ": %s\n\n", text)
	if err != nil {
		w.metrics.IncrementErrors()
		return fmt.Errorf("write comment: %w", err)
	}
	w.flusher.Flush()
	w.metrics.AddBytes(n)
	return nil
}

// Metrics returns the traffic sent so far.
func (w *Writer) Metrics() clientmetrics.Snapshot {
	return w.metrics.Snapshot()
}

// Stream sends one data event per value received from in until ctx is done
// or in is closed. A keep-alive comment goes out whenever the stream has been
// idle for keepAlive.
func Stream[T any](ctx context.Context, w *Writer, in <-chan T, encode func(T) ([]byte, error), keepAlive time.Duration) error {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	idle := time.NewTimer(keepAlive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-in:
			if !ok {
				return nil
			}
			data, err := encode(v)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			if err := w.Send(Event{Data: string(data)}); err != nil {
				return err
			}
		case <-idle.C:
			if err := w.Comment("keep-alive"); err != nil {
				return err
			}
		}
		idle.Reset(keepAlive)
	}
}

// Client represents an SSE client connection.
type Client struct {
	url        string
	headers    http.Header
	httpClient *http.Client
	resp       *http.Response
	reader     *bufio.Reader
	mu         sync.Mutex
	metrics    *clientmetrics.Counters
}

// Config configures the SSE client behavior.
type Config struct {
	URL     string
	Headers http.Header
	// Timeout bounds the whole connection; zero means no limit, which suits
	// long-lived streams.
	Timeout time.Duration
}

// NewClient creates a new SSE client with the given configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		url:     cfg.URL,
		headers: cfg.Headers,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		metrics: clientmetrics.New(),
	}
}

// Connect establishes an SSE connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resp != nil {
		return fmt.Errorf("already connected")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.metrics.IncrementErrors()
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IncrementErrors()
		return fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.IncrementErrors()
		resp.Body.Close()
		return &StatusError{Code: resp.StatusCode}
	}

	c.resp = resp
	c.reader = bufio.NewReader(resp.Body)
	c.metrics.MarkConnected()

	return nil
}

// ReadEvent reads the next SSE event from the stream. Comment lines such as
// keep-alives are skipped.
func (c *Client) ReadEvent(ctx context.Context) (Event, error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	if reader == nil {
		return Event{}, fmt.Errorf("not connected")
	}

	event := Event{}
	var dataLines []string
	var size int

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			c.metrics.IncrementErrors()
			if err == io.EOF {
				return Event{}, fmt.Errorf("connection closed")
			}
			return Event{}, fmt.Errorf("read line: %w", err)
		}
		size += len(line)

		line = strings.TrimRight(line, "\r\n")

		// Empty line marks end of event
		if line == "" {
			if len(dataLines) > 0 || event.Event != "" || event.ID != "" {
				event.Data = strings.Join(dataLines, "\n")
				c.metrics.Observe(size)
				return event, nil
			}
			c.metrics.AddBytes(size)
			size = 0
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			event.ID = value
		case "event":
			event.Event = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
}

// Close closes the SSE connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resp == nil {
		return nil
	}

	err := c.resp.Body.Close()
	c.resp = nil
	c.reader = nil
	c.metrics.Reset()

	return err
}

// Metrics returns the traffic received so far.
func (c *Client) Metrics() clientmetrics.Snapshot {
	return c.metrics.Snapshot()
}
