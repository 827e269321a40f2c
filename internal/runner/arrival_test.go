package runner

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(200)
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(0.000001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestNewArrivalControllerDisabledWithoutRate(t *testing.T) {
	opt := Options{}
	opt.normalize()
	if ctrl := newArrivalController(opt); ctrl != nil {
		t.Fatalf("expected nil controller, got %T", ctrl)
	}
}

func TestNewArrivalControllerModels(t *testing.T) {
	tests := []struct {
		model ArrivalModel
		want  string
	}{
		{ArrivalModelUniform, "*runner.uniformArrival"},
		{ArrivalModelPoisson, "*runner.poissonArrival"},
		{"", "*runner.uniformArrival"},
	}
	for _, tt := range tests {
		opt := Options{RatePerSecond: 100, ArrivalModel: tt.model}
		opt.normalize()
		ctrl := newArrivalController(opt)
		if got := fmt.Sprintf("%T", ctrl); got != tt.want {
			t.Errorf("model %q: expected %s, got %s", tt.model, tt.want, got)
		}
	}
}

func TestOptionsNormalize(t *testing.T) {
	opt := Options{Concurrency: -1, ReadPct: 150, RatePerSecond: -3, TotalRequests: -2}
	opt.normalize()
	if opt.Concurrency != 1 || opt.ReadPct != 100 || opt.RatePerSecond != 0 || opt.TotalRequests != 0 {
		t.Fatalf("unexpected normalized options %+v", opt)
	}
	if opt.SeedBase != DefaultSeedBase || opt.LimiterFactory == nil {
		t.Fatalf("expected defaults, got seed %d", opt.SeedBase)
	}
}
