package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                  "127.0.0.1:0",
		AuthMode:              config.AuthModeDisabled,
		PaymentExpiry:         30 * time.Minute,
		GenMaxTokens:          256,
		GenTimeout:            8 * time.Second,
		ConvertThreshold:      8,
		ContextTokenBudget:    2300,
		WSMaxJSONMessageBytes: 64 * 1024,
		WSPingInterval:        20 * time.Second,
		WSWriteTimeout:        5 * time.Second,
		WSReadTimeout:         90 * time.Second,
		WSHandshakeTimeout:    5 * time.Second,
		TurnTimeout:           15 * time.Second,
		MaxSessionDuration:    2 * time.Hour,
		MaxHistoryTurns:       40,
		EnrichmentTimeout:     5 * time.Second,
		MaxCallsPerPrincipal:  2,
		ReadHeaderTimeout:     10 * time.Second,
		ShutdownGracePeriod:   2 * time.Second,
	}
}

func TestRunGateway_MissingDependencies(t *testing.T) {
	err := runGateway(t.Context(), slog.New(slog.DiscardHandler), gatewayDeps{})
	if err == nil || !strings.Contains(err.Error(), "loadConfig") {
		t.Fatalf("err = %v, want missing loadConfig", err)
	}
}

func TestRunGateway_ConfigErrorPropagates(t *testing.T) {
	deps := defaultGatewayDeps()
	deps.loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("boom")
	}
	err := runGateway(t.Context(), slog.New(slog.DiscardHandler), deps)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("err = %v, want load config error", err)
	}
}

func TestRunGateway_ShutsDownOnSignal(t *testing.T) {
	var sigCh chan<- os.Signal
	notified := make(chan struct{})
	deps := gatewayDeps{
		loadConfig: func() (config.Config, error) { return testConfig(), nil },
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			sigCh = c
			close(notified)
		},
		signalStop: func(chan<- os.Signal) {},
	}

	done := make(chan error, 1)
	go func() {
		done <- runGateway(context.Background(), slog.New(slog.DiscardHandler), deps)
	}()

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("signalNotify never called")
	}
	sigCh <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runGateway error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runGateway did not shut down")
	}
}

func TestBuildHTTPServer(t *testing.T) {
	cfg := testConfig()
	srv := buildHTTPServer(cfg, nil)
	if srv.Addr != cfg.Addr {
		t.Fatalf("addr = %q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("read header timeout = %v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}
