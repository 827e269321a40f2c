package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/publish"
	"github.com/torosent/kvscope/internal/sse"
	"github.com/torosent/kvscope/internal/websocket"
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot())
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.opts.Publisher.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer sub.Close()

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	s.logger.Debug("sse observer connected", zap.String("remote", r.RemoteAddr))
	err = sse.Stream(ctx, sw, withInitial(ctx, s.agg.Snapshot(), sub), encodeSnapshot, s.opts.KeepAlive)
	m := sw.Metrics()
	s.logger.Debug("sse observer disconnected",
		zap.String("remote", r.RemoteAddr),
		zap.Int64("messages", m.Messages),
		zap.Int64("bytes", m.Bytes),
		zap.Error(err),
	)
}

func (s *Server) handleMetricsWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := s.opts.Publisher.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer sub.Close()

	ctx := r.Context()
	m, err := websocket.Stream(ctx, w, r, withInitial(ctx, s.agg.Snapshot(), sub), s.opts.WebSocket)
	s.logger.Debug("websocket observer disconnected",
		zap.String("remote", r.RemoteAddr),
		zap.Int64("messages", m.Messages),
		zap.Int64("bytes", m.Bytes),
		zap.Error(err),
	)
}

func encodeSnapshot(snap metrics.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// withInitial yields first, then everything the subscription delivers. The
// returned channel closes when the subscription does or ctx ends.
func withInitial(ctx context.Context, first metrics.Snapshot, sub *publish.Subscription) <-chan metrics.Snapshot {
	out := make(chan metrics.Snapshot)
	go func() {
		defer close(out)
		next := first
		for {
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
			var ok bool
			select {
			case next, ok = <-sub.C:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
