package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-backoffice/renewal"
	"github.com/stretchr/testify/require"
)

func newBackOffice(t *testing.T, remaining time.Duration, role string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var renewals atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"subject": "root", "expires_at": time.Now().Add(remaining)})
	})
	mux.HandleFunc("POST /api/session/renew", func(w http.ResponseWriter, r *http.Request) {
		renewals.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"subject": "root", "expires_at": time.Now().Add(30 * time.Minute)})
	})
	mux.HandleFunc("GET /api/users/{id}/role", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "role": role})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &renewals
}

func setFlags(t *testing.T, renew bool) {
	t.Helper()
	prevRenew, prevTick, prevDuration := autoRenew, tickInterval, duration
	autoRenew, tickInterval, duration = renew, 10*time.Millisecond, 30*time.Minute
	t.Cleanup(func() { autoRenew, tickInterval, duration = prevRenew, prevTick, prevDuration })
}

func TestWatch_AutoRenewsCriticalSession(t *testing.T) {
	setFlags(t, true)
	srv, renewals := newBackOffice(t, 4*time.Minute, "ADMIN")

	client, err := renewal.NewHTTPClient(srv.URL, "loggedInSessionId=abc", "", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, watch(ctx, &out, client))

	require.Equal(t, int32(1), renewals.Load())
	require.Contains(t, out.String(), "Critical")
	require.Contains(t, out.String(), "renewed: ")
}

func TestWatch_StopsWhenNotAdmin(t *testing.T) {
	setFlags(t, false)
	srv, renewals := newBackOffice(t, 20*time.Minute, "USER")

	client, err := renewal.NewHTTPClient(srv.URL, "loggedInSessionId=abc", "root", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, watch(ctx, &out, client))

	require.Zero(t, renewals.Load())
	require.Contains(t, out.String(), "no longer an administrator")
}
