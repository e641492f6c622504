package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/config"
	"github.com/quantix-kvm/swapd/internal/domain"
)

// MockEventLister serves canned audit events.
type MockEventLister struct {
	events []*domain.SwapEvent
	err    error

	gotVMID  string
	gotLimit int
}

func (m *MockEventLister) ListByVM(ctx context.Context, vmID string, limit int) ([]*domain.SwapEvent, error) {
	m.gotVMID = vmID
	m.gotLimit = limit
	return m.events, m.err
}

// MockHealthChecker fails with the configured error.
type MockHealthChecker struct {
	err error
}

func (m *MockHealthChecker) Health(ctx context.Context) error { return m.err }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestServer_EventsReturnsJSON(t *testing.T) {
	lister := &MockEventLister{
		events: []*domain.SwapEvent{
			{ID: "ev-1", VMID: "vm-1", Action: domain.SwapEventEnabled, PredictedDuration: 4 * time.Hour},
		},
	}
	s := New(testServerConfig(), nil, lister, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest("GET", "/events?vm=vm-1&limit=10", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if lister.gotVMID != "vm-1" || lister.gotLimit != 10 {
		t.Errorf("Expected query for vm-1 limit 10, got %s limit %d", lister.gotVMID, lister.gotLimit)
	}

	var events []*domain.SwapEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Errorf("Expected the canned event back, got %+v", events)
	}
}

func TestServer_EventsRequiresVMParameter(t *testing.T) {
	s := New(testServerConfig(), nil, &MockEventLister{}, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest("GET", "/events", nil))

	if rec.Code != 400 {
		t.Errorf("Expected 400 without vm parameter, got %d", rec.Code)
	}
}

func TestServer_EventsRejectsBadLimit(t *testing.T) {
	s := New(testServerConfig(), nil, &MockEventLister{}, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest("GET", "/events?vm=vm-1&limit=nope", nil))

	if rec.Code != 400 {
		t.Errorf("Expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestServer_EventsWithoutLister(t *testing.T) {
	s := New(testServerConfig(), nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest("GET", "/events?vm=vm-1", nil))

	if rec.Code != 503 {
		t.Errorf("Expected 503 without an event lister, got %d", rec.Code)
	}
}

func TestServer_EventsListerError(t *testing.T) {
	lister := &MockEventLister{err: errors.New("connection refused")}
	s := New(testServerConfig(), nil, lister, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest("GET", "/events?vm=vm-1", nil))

	if rec.Code != 500 {
		t.Errorf("Expected 500 on lister failure, got %d", rec.Code)
	}
}

func TestServer_HealthzReportsFailingCheck(t *testing.T) {
	checks := map[string]HealthChecker{
		"postgres": &MockHealthChecker{},
		"redis":    &MockHealthChecker{err: errors.New("connection refused")},
	}
	s := New(testServerConfig(), checks, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 503 {
		t.Errorf("Expected 503 with a failing check, got %d", rec.Code)
	}
}

func TestServer_HealthzOK(t *testing.T) {
	checks := map[string]HealthChecker{
		"postgres": &MockHealthChecker{},
	}
	s := New(testServerConfig(), checks, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Errorf("Expected 200 with healthy checks, got %d", rec.Code)
	}
}
