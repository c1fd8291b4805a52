// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package ctxid

import (
	"sync"
	"testing"
)

func TestCurrentStable(t *testing.T) {
	a, b := Current(), Current()
	if a != b {
		t.Fatalf("Current changed within one goroutine: %v then %v", a, b)
	}
	if !a.IsSet() {
		t.Fatalf("Current() = %v; want a set ID", a)
	}
}

func TestCurrentDistinct(t *testing.T) {
	const n = 16
	ids := make(chan ID, n)
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start // keep every goroutine alive until all have started
			ids <- Current()
		}()
	}
	close(start)
	wg.Wait()
	close(ids)

	seen := map[ID]bool{Current(): true}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID %v among live goroutines", id)
		}
		seen[id] = true
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{Unset, "none"},
		{1, "g1"},
		{4242, "g4242"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("ID(%d).String() = %q; want %q", int64(tt.id), got, tt.want)
		}
	}
}

func TestProviderOr(t *testing.T) {
	var p Provider
	if got := p.Or()(); got != Current() {
		t.Errorf("nil Provider.Or() = %v; want current goroutine %v", got, Current())
	}
	fixed := Provider(func() ID { return 7 })
	if got := fixed.Or()(); got != 7 {
		t.Errorf("fixed Provider.Or() = %v; want g7", got)
	}
}
