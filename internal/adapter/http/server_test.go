package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/storm-ambiance/internal/adapter/http"
	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSurface struct {
	snap  state.Snapshot
	burst time.Duration
}

func (m *mockSurface) Snapshot() state.Snapshot { return m.snap }
func (m *mockSurface) Show()                    { m.snap.EventsTabVisible = true }
func (m *mockSurface) Hide()                    { m.snap.EventsTabVisible = false }
func (m *mockSurface) Burst(d time.Duration) {
	m.burst = d
	m.snap.BurstActive = true
}
func (m *mockSurface) SetAmbianceEnabled(enabled bool) { m.snap.AmbianceEnabled = enabled }

type mockRefresher struct{ triggers int }

func (m *mockRefresher) Trigger() { m.triggers++ }

func newTestServer(readyErr error) (*httpadapter.Server, *mockSurface, *mockRefresher) {
	surface := &mockSurface{snap: state.Snapshot{Effect: domain.EffectRain, EffectIntensityScale: 1}}
	refresher := &mockRefresher{}
	srv := httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, surface, refresher, slog.Default())
	return srv, surface, refresher
}

func do(srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	rec := do(srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	rec := do(srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv, _, _ := newTestServer(fmt.Errorf("surface is not mounted"))
	rec := do(srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "surface is not mounted", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	rec := do(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	rec := do(srv, http.MethodGet, "/v1/ambiance", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.EffectRain, snap.Effect)
	assert.InDelta(t, 1.0, snap.EffectIntensityScale, 1e-9)
}

func TestVisibilityEndpoint(t *testing.T) {
	srv, surface, _ := newTestServer(nil)

	rec := do(srv, http.MethodPost, "/v1/ambiance/visibility", `{"visible":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, surface.snap.EventsTabVisible)

	rec = do(srv, http.MethodPost, "/v1/ambiance/visibility", `{"visible":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, surface.snap.EventsTabVisible)
}

func TestEnabledEndpoint(t *testing.T) {
	srv, surface, _ := newTestServer(nil)
	surface.snap.AmbianceEnabled = true

	rec := do(srv, http.MethodPost, "/v1/ambiance/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, surface.snap.AmbianceEnabled)
}

func TestBurstEndpoint(t *testing.T) {
	srv, surface, _ := newTestServer(nil)

	rec := do(srv, http.MethodPost, "/v1/ambiance/burst", `{"duration":"45s"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45*time.Second, surface.burst)
	assert.True(t, surface.snap.BurstActive)
}

func TestControlEndpoints_RejectBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"visibility missing field", "/v1/ambiance/visibility", `{}`},
		{"visibility not json", "/v1/ambiance/visibility", `visible`},
		{"visibility unknown field", "/v1/ambiance/visibility", `{"visible":true,"extra":1}`},
		{"enabled missing field", "/v1/ambiance/enabled", `{}`},
		{"burst garbage", "/v1/ambiance/burst", `{"duration":"soon"}`},
		{"burst zero", "/v1/ambiance/burst", `{"duration":"0s"}`},
		{"burst too long", "/v1/ambiance/burst", `{"duration":"2h"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, surface, _ := newTestServer(nil)
			rec := do(srv, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, surface.snap.EventsTabVisible)
			assert.Zero(t, surface.burst)
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, _, refresher := newTestServer(nil)

	rec := do(srv, http.MethodPost, "/v1/ambiance/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, refresher.triggers)
}

func TestRefreshEndpoint_Disabled(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockSurface{}, nil, slog.Default())

	rec := do(srv, http.MethodPost, "/v1/ambiance/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestControlEndpoints_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	rec := do(srv, http.MethodGet, "/v1/ambiance/burst", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
