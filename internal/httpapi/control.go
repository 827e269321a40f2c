package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/runner"
)

const maxControlBody = 64 << 10

// startRequest is the body of POST /api/benchmark/start. Omitted fields
// take the run defaults.
type startRequest struct {
	Concurrency  *int                `json:"concurrency"`
	DurationSecs *float64            `json:"duration_secs"`
	ReadPct      *int                `json:"read_pct"`
	Rate         int                 `json:"rate"`
	ArrivalModel runner.ArrivalModel `json:"arrival_model"`
}

func (req startRequest) runConfig() bench.RunConfig {
	cfg := bench.RunConfig{
		Concurrency:   bench.DefaultConcurrency,
		Duration:      bench.DefaultDuration,
		ReadPct:       bench.DefaultReadPct,
		RatePerSecond: req.Rate,
		ArrivalModel:  req.ArrivalModel,
	}
	if req.Concurrency != nil {
		cfg.Concurrency = *req.Concurrency
	}
	if req.DurationSecs != nil {
		cfg.Duration = time.Duration(*req.DurationSecs * float64(time.Second))
	}
	if req.ReadPct != nil {
		cfg.ReadPct = *req.ReadPct
	}
	return cfg
}

func decodeStart(r *http.Request) (startRequest, error) {
	var req startRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxControlBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return startRequest{}, nil
		}
		return startRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.opts.Orchestrator.Start(req.runConfig())
	if err != nil {
		s.logger.Debug("benchmark start rejected", zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Orchestrator.Stop(); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Orchestrator.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Orchestrator.Status())
}
