// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRegisterAndIncrement(t *testing.T) {
	before := testutil.ToFloat64(CacheHits)
	CacheHits.Inc()
	if got := testutil.ToFloat64(CacheHits); got != before+1 {
		t.Errorf("CacheHits = %v, want %v", got, before+1)
	}

	RequestsTotal.WithLabelValues("item_listing", "200").Inc()
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("item_listing", "200")); got < 1 {
		t.Errorf("RequestsTotal = %v, want >= 1", got)
	}

	CircuitBreakerState.WithLabelValues("upstream").Set(2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("upstream")); got != 2 {
		t.Errorf("CircuitBreakerState = %v, want 2", got)
	}
}
