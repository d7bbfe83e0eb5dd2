// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// mockServer scripts ListenAndServe and Shutdown behavior.
type mockServer struct {
	listenErr    error
	blockForever bool
	shutdownErr  error

	shutdownCalls int32
	release       chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{blockForever: true, release: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	if m.blockForever {
		<-m.release
		return http.ErrServerClosed
	}
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(context.Context) error {
	atomic.AddInt32(&m.shutdownCalls, 1)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newMockServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if got := atomic.LoadInt32(&srv.shutdownCalls); got != 1 {
		t.Errorf("expected one Shutdown call, got %d", got)
	}
}

func TestHTTPServiceStartupFailure(t *testing.T) {
	srv := &mockServer{listenErr: errors.New("address in use")}
	svc := NewHTTPService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected a startup error")
	}
}

func TestTreeServesAndStops(t *testing.T) {
	tree := NewTree(slog.New(slog.DiscardHandler), DefaultTreeConfig())

	srv := newMockServer()
	tree.AddAPIService(NewHTTPService(srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected tree error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}
