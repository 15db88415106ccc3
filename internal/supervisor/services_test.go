// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingCleaner struct {
	sweeps atomic.Int64
}

func (c *countingCleaner) CleanupExpired() int {
	c.sweeps.Add(1)
	return 1
}

func TestJanitorSweepsUntilCancelled(t *testing.T) {
	t.Parallel()

	cleaner := &countingCleaner{}
	janitor := NewJanitorService(5*time.Millisecond, cleaner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- janitor.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for cleaner.sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor never swept")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop on cancel")
	}
}

func TestJanitorDefaultsInterval(t *testing.T) {
	t.Parallel()

	j := NewJanitorService(0)
	if j.interval != time.Minute {
		t.Fatalf("interval = %v, want 1m default", j.interval)
	}
}

func TestTreeDefaults(t *testing.T) {
	t.Parallel()

	tree := NewTree(TreeConfig{})
	if tree == nil {
		t.Fatal("NewTree returned nil")
	}
	tree.AddWorkerService(NewJanitorService(time.Minute))
}
