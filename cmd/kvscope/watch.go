package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/config"
	"github.com/torosent/kvscope/internal/dashboard"
	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/output"
	"github.com/torosent/kvscope/internal/sse"
	"github.com/torosent/kvscope/internal/websocket"
)

// snapshotStream yields snapshots from a remote server until it fails.
type snapshotStream interface {
	Next(ctx context.Context) (metrics.Snapshot, error)
	Close() error
}

type wsStream struct{ c *websocket.Client }

func (s wsStream) Next(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := s.c.ReceiveJSON(ctx, &snap)
	return snap, err
}

func (s wsStream) Close() error { return s.c.Close() }

type sseStream struct{ c *sse.Client }

func (s sseStream) Next(ctx context.Context) (metrics.Snapshot, error) {
	ev, err := s.c.ReadEvent(ctx)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal([]byte(ev.Data), &snap); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s sseStream) Close() error { return s.c.Close() }

// dialWatch connects over WebSocket for ws and wss URLs and over SSE otherwise.
func dialWatch(ctx context.Context, raw string) (snapshotStream, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("watch url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		c := websocket.NewClient(websocket.Config{URL: raw})
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect %s: %w", raw, err)
		}
		return wsStream{c: c}, nil
	default:
		c := sse.NewClient(sse.Config{URL: raw})
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect %s: %w", raw, err)
		}
		return sseStream{c: c}, nil
	}
}

// pump forwards snapshots from s until ctx ends or the stream fails. It
// closes the returned channel and calls done on the way out.
func pump(ctx context.Context, s snapshotStream, logger *zap.Logger, done func()) <-chan metrics.Snapshot {
	out := make(chan metrics.Snapshot, 1)
	go func() {
		defer done()
		defer close(out)
		for {
			snap, err := s.Next(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, websocket.ErrClosedByPeer) {
					logger.Warn("watch stream ended", zap.Error(err))
				}
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// watch renders a remote server's snapshots until interrupted or the stream
// ends, then prints a report of the last one.
func watch(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *zap.Logger) error {
	stream, err := dialWatch(ctx, cfg.Watch)
	if err != nil {
		return err
	}
	watchCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Reads block on the connection, so closing it is what unblocks them.
	go func() {
		<-watchCtx.Done()
		_ = stream.Close()
	}()
	snaps := pump(watchCtx, stream, logger, stop)

	var last metrics.Snapshot
	if cfg.Run.Dashboard {
		dash, err := dashboard.New(snaps, dashboard.RunConfig{Store: cfg.Watch}, stop)
		if err != nil {
			return err
		}
		dash.Start()
		<-watchCtx.Done()
		dash.Stop()
		last = dash.Last()
	} else {
		progress := output.NewProgressReporter(snaps, stdout)
		progress.Start()
		<-watchCtx.Done()
		progress.Stop()
		last, _ = progress.Last()
	}

	if !last.TakenAt.IsZero() {
		output.PrintReport(stdout, last, nil)
	}
	return nil
}
