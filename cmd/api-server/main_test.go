package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/hackgods/appointment-pipeline/internal/config"
)

func TestNewServer(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	srv := newServer(cfg, http.NotFoundHandler())
	if srv.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("expected 5s read header timeout, got %s", srv.ReadHeaderTimeout)
	}
}
