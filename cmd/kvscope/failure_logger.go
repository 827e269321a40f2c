package main

import (
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/metrics"
)

// zapFailureLogger writes one warning per failed operation.
type zapFailureLogger struct {
	logger *zap.Logger
}

func newFailureLogger(logger *zap.Logger) *zapFailureLogger {
	return &zapFailureLogger{logger: logger.Named("failures")}
}

func (l *zapFailureLogger) LogFailure(s metrics.Sample) {
	l.logger.Warn("operation failed",
		zap.String("kind", s.Kind.String()),
		zap.String("endpoint", s.Endpoint),
		zap.String("label", metrics.ErrorLabel(s.Err)),
		zap.Duration("store", s.StoreLatency),
		zap.Duration("total", s.TotalLatency),
		zap.Error(s.Err),
	)
}
