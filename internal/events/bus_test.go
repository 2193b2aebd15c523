package events

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// brokenRedis accepts TCP connections and immediately drops them, so every
// command the client issues fails with a connection error.
func brokenRedis(t *testing.T) (addr string, dialCount func() int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	dials := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			dials++
			mu.Unlock()
			conn.Close()
		}
	}()

	return ln.Addr().String(), func() int {
		mu.Lock()
		defer mu.Unlock()
		return dials
	}
}

func TestSubscribePausesWhenReadsKeepFailing(t *testing.T) {
	addr, dials := brokenRedis(t)
	bus := &Bus{
		rdb:    redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}),
		logger: zap.NewNop(),
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	for range bus.Subscribe(ctx, "dead") {
	}
	elapsed := time.Since(start)

	if elapsed < 400*time.Millisecond {
		t.Fatalf("subscribe returned after %v, want it to hold until ctx deadline", elapsed)
	}
	// With a pause between failed reads the client redials a handful of
	// times at most; a tight retry loop produces hundreds in this window.
	if n := dials(); n > 10 {
		t.Errorf("dials = %d, want a paced retry", n)
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	addr, _ := brokenRedis(t)
	bus := &Bus{
		rdb:    redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}),
		logger: zap.NewNop(),
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, "x")
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("received an event from a dead stream")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription channel never closed after cancel")
	}
}
