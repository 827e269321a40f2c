package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/runner"
	"github.com/torosent/kvscope/internal/tracing"
	"github.com/torosent/kvscope/internal/workload"
)

// timing is the latency decomposition returned with every record.
type timing struct {
	TotalUs    int64 `json:"total_us"`
	StoreUs    int64 `json:"store_us"`
	OverheadUs int64 `json:"overhead_us"`
}

type envelope struct {
	Data   any    `json:"data"`
	Timing timing `json:"timing"`
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

// perform runs op like a benchmark worker would and records the sample.
func (s *Server) perform(ctx context.Context, op runner.Operation) (any, metrics.Sample) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
		defer cancel()
	}

	var span trace.Span
	if s.opts.Tracer != nil {
		ctx, span = tracing.StartOperationSpan(ctx, s.opts.Tracer, op.Endpoint(), op.Kind().String())
	}
	result, sample := runner.Execute(ctx, op)
	if span != nil {
		tracing.EndOperationSpan(span, sample.StoreLatency, sample.Err)
	}
	s.agg.Record(sample)
	return result, sample
}

func (s *Server) serveOperation(w http.ResponseWriter, r *http.Request, op runner.Operation, status int) {
	result, sample := s.perform(r.Context(), op)
	if sample.Err != nil {
		writeFailure(w, sample.Err)
		return
	}
	storeUs := sample.StoreLatency.Microseconds()
	total := sample.TotalLatency.Microseconds()
	writeJSON(w, status, envelope{
		Data:   result,
		Timing: timing{TotalUs: total, StoreUs: storeUs, OverheadUs: total - storeUs},
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.serveOperation(w, r, s.opts.Generator.ReadUser(chi.URLParam(r, "id")), http.StatusOK)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	s.serveOperation(w, r, s.opts.Generator.ReadProduct(chi.URLParam(r, "id")), http.StatusOK)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.serveOperation(w, r, s.opts.Generator.ReadSession(chi.URLParam(r, "id")), http.StatusOK)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	var u workload.User
	s.withRNG(func(rng *rand.Rand) { u = s.opts.Generator.NewUser(rng) })
	u.Name = req.Name
	u.Email = req.Email
	if req.Role != "" {
		u.Role = req.Role
	}
	s.serveOperation(w, r, s.opts.Generator.CreateUser(u), http.StatusCreated)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var sess workload.Session
	s.withRNG(func(rng *rand.Rand) { sess = s.opts.Generator.NewSession(rng, req.UserID) })
	s.serveOperation(w, r, s.opts.Generator.CreateSession(sess), http.StatusCreated)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxControlBody)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
