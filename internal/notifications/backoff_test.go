package notifications_test

import (
	"testing"
	"time"

	"encodefleet/internal/config"
	"encodefleet/internal/notifications"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		try      int
		want     time.Duration
	}{
		{"exponential first", config.BackoffExponential, 1, 10 * time.Second},
		{"exponential third", config.BackoffExponential, 3, 40 * time.Second},
		{"exponential capped", config.BackoffExponential, 10, 60 * time.Second},
		{"exponential huge try", config.BackoffExponential, 5000, 60 * time.Second},
		{"linear second", config.BackoffLinear, 2, 20 * time.Second},
		{"linear capped", config.BackoffLinear, 9, 60 * time.Second},
		{"fixed", config.BackoffFixed, 7, 10 * time.Second},
		{"zero try treated as first", config.BackoffExponential, 0, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := notifications.Backoff{Strategy: tt.strategy, Base: 10 * time.Second, Max: time.Minute}
			if got := b.Delay(tt.try); got != tt.want {
				t.Fatalf("Delay(%d) = %s, want %s", tt.try, got, tt.want)
			}
		})
	}
}

func TestBackoffNeverDecreases(t *testing.T) {
	for _, strategy := range []string{config.BackoffExponential, config.BackoffLinear, config.BackoffFixed} {
		b := notifications.Backoff{Strategy: strategy, Base: 3 * time.Second, Max: 10 * time.Minute}
		prev := time.Duration(0)
		for try := 1; try <= 100; try++ {
			d := b.Delay(try)
			if d < prev {
				t.Fatalf("%s: Delay(%d) = %s dropped below %s", strategy, try, d, prev)
			}
			prev = d
		}
	}
}

func TestNewBackoffUsesConfig(t *testing.T) {
	cfg := config.Default()
	b := notifications.NewBackoff(cfg.Notifications)
	if b.Strategy != config.BackoffExponential {
		t.Fatalf("expected exponential default, got %q", b.Strategy)
	}
	if b.Base != time.Duration(cfg.Notifications.BackoffBaseSeconds)*time.Second {
		t.Fatalf("unexpected base %s", b.Base)
	}
	if b.Max != time.Duration(cfg.Notifications.BackoffMaxSeconds)*time.Second {
		t.Fatalf("unexpected max %s", b.Max)
	}
}
