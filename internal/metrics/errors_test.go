package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type labeled struct{}

func (labeled) Error() string      { return "labeled" }
func (labeled) ErrorLabel() string { return "Record not found" }

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Unknown error"},
		{"labeler", labeled{}, "Record not found"},
		{"wrapped labeler", fmt.Errorf("hgetall: %w", labeled{}), "Record not found"},
		{"deadline", fmt.Errorf("op: %w", context.DeadlineExceeded), "Context deadline exceeded"},
		{"canceled", context.Canceled, "Context canceled"},
		{"plain", errors.New("boom"), "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown error"},
		{"*net.OpError", "Network error"},
		{"*strconv.NumError", "Malformed record"},
		{"*mypkg.TimeoutError", "Timeout Error (mypkg)"},
		{"main.badThing", "Bad Thing"},
		{"*github.com/x/y/z.HTTPFailure", "HTTP Failure (z)"},
	}
	for _, tt := range tests {
		if got := FriendlyErrorName(tt.in); got != tt.want {
			t.Errorf("FriendlyErrorName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFlattenErrors(t *testing.T) {
	if rows := FlattenErrors(nil); rows != nil {
		t.Fatalf("expected nil rows, got %v", rows)
	}
	rows := FlattenErrors(map[string]int64{"b": 2, "a": 2, "c": 5})
	want := []string{"c", "a", "b"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, label := range want {
		if rows[i].Label != label {
			t.Fatalf("row %d: expected %q, got %q", i, label, rows[i].Label)
		}
	}
}
