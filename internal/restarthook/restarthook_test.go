package restarthook

import (
	"context"
	"testing"
	"time"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

func TestRunEmptyCommandIsNoop(t *testing.T) {
	if err := Run(context.Background(), "  ", time.Second); err != nil {
		t.Errorf("expected no-op for blank command, got %v", err)
	}
}

func TestRunSucceeds(t *testing.T) {
	if err := Run(context.Background(), "exit 0", 5*time.Second); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRunNonZeroExitReportsRestartFailed(t *testing.T) {
	err := Run(context.Background(), "echo boom >&2; exit 1", 5*time.Second)
	if !errkind.Is(err, errkind.RestartFailed) {
		t.Fatalf("expected RestartFailed, got %v", err)
	}
}

func TestRunTimeoutReportsRestartFailed(t *testing.T) {
	err := Run(context.Background(), "sleep 5", 50*time.Millisecond)
	if !errkind.Is(err, errkind.RestartFailed) {
		t.Fatalf("expected RestartFailed on timeout, got %v", err)
	}
}

func TestRunUsesDefaultTimeoutWhenNonPositive(t *testing.T) {
	if err := Run(context.Background(), "exit 0", 0); err != nil {
		t.Errorf("Run with zero timeout: %v", err)
	}
	if err := Run(context.Background(), "exit 0", -time.Second); err != nil {
		t.Errorf("Run with negative timeout: %v", err)
	}
}
