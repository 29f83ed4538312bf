// Command mockweather serves a deterministic stand-in for the OpenWeatherMap
// current-weather endpoint, for local runs of the bridge without an API key.
//
// Usage:
//
//	go run ./cmd/mockweather -addr :9090 -at 2024-04-26T15:00:00Z
//	OPENWEATHER_BASE_URL=http://localhost:9090 OPENWEATHER_API_KEY=dev go run ./cmd/bridge
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/adapter/openweather/owmock"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":9090", "listen address")
	at := flag.String("at", "", "fixed observation time (RFC3339); empty uses the wall clock")
	flag.Parse()

	var clock clockwork.Clock
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
		// A fixed clock makes every response reproducible.
		clock = clockwork.NewFakeClockAt(t)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           owmock.NewHandler(clock),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("mock openweather listening on %s", *addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
