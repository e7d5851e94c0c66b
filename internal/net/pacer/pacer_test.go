package pacer

import (
	"context"
	"testing"
	"time"
)

func TestNewZeroRateIsUnpaced(t *testing.T) {
	p := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 1_000_000); err != nil {
		t.Errorf("Wait on unpaced Pacer = %v, want nil", err)
	}
}

func TestWaitConsumesBurstImmediately(t *testing.T) {
	p := New(100_000)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 100); err != nil {
		t.Errorf("Wait within burst = %v, want nil", err)
	}
}

func TestSetRateZeroDisablesPacing(t *testing.T) {
	p := New(100_000)
	p.SetRate(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 10_000_000); err != nil {
		t.Errorf("Wait after SetRate(0) = %v, want nil", err)
	}
}

func TestNewWithConfigCustomBurst(t *testing.T) {
	p := NewWithConfig(1, &Config{BurstBytes: 5_000_000})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 4_000_000); err != nil {
		t.Errorf("Wait within configured burst = %v, want nil", err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	p := New(1)
	// Drain the initial 1500-byte burst so the next request (within the
	// burst, but with an empty bucket) has to wait on the context.
	if err := p.Wait(context.Background(), 1500); err != nil {
		t.Fatalf("Wait for the initial burst = %v, want nil", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 1500); err == nil {
		t.Error("Wait on an empty bucket with near-zero rate should hit context deadline")
	}
}
