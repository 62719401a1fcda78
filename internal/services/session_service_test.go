package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func TestSessionService_OpenGetListClose(t *testing.T) {
	agent := newGatedAgent()
	svc := NewSessionService(boardFactory(agent), quietLogger(), nil)
	t.Cleanup(svc.Shutdown)

	a, err := svc.Open(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := svc.Open(context.Background(), "bob"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 2 {
		t.Fatalf("sessions_active = %v, want 2", got)
	}

	info, views, err := svc.Get("alice", a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Owner != "alice" || len(views) != len(domain.DefaultCatalog()) {
		t.Fatalf("unexpected session %+v with %d views", info, len(views))
	}
	for _, v := range views {
		if v.Control != workflow.ControlReady {
			t.Fatalf("fresh card %s is %s", v.RiskType, v.Control)
		}
	}

	if _, _, err := svc.Get("bob", a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign Get = %v, want ErrSessionNotFound", err)
	}
	if got := svc.List("alice"); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("List(alice) = %+v", got)
	}

	if err := svc.Close("bob", a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign Close = %v", err)
	}
	if err := svc.Close("alice", a.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := svc.Get("alice", a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after Close = %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 1 {
		t.Fatalf("sessions_active = %v, want 1", got)
	}
}

func TestSessionService_TriggerBusyAndUnknownFeature(t *testing.T) {
	agent := newGatedAgent()
	svc := NewSessionService(boardFactory(agent), quietLogger(), nil)
	t.Cleanup(svc.Shutdown)

	s, _ := svc.Open(context.Background(), "alice")

	view, err := svc.Trigger(context.Background(), "alice", s.ID, domain.RiskTrading)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if view.Control != workflow.ControlSubmitting {
		t.Fatalf("control after trigger = %s", view.Control)
	}
	if _, err := svc.Trigger(context.Background(), "alice", s.ID, domain.RiskTrading); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Trigger = %v, want ErrBusy", err)
	}
	if _, err := svc.Trigger(context.Background(), "alice", s.ID, domain.RiskType("weather")); !errors.Is(err, ErrFeatureNotFound) {
		t.Fatalf("unknown feature = %v", err)
	}
	if _, err := svc.Feature("alice", s.ID, domain.RiskType("weather")); !errors.Is(err, ErrFeatureNotFound) {
		t.Fatalf("unknown Feature = %v", err)
	}

	other, err := svc.Feature("alice", s.ID, domain.RiskHedgeFund)
	if err != nil || other.Control != workflow.ControlReady {
		t.Fatalf("independent card = %+v, %v", other, err)
	}

	close(agent.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, _ := svc.Feature("alice", s.ID, domain.RiskTrading)
		if v.Control == workflow.ControlCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not complete, control=%s", v.Control)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionService_CloseIdleKeepsBusySessions(t *testing.T) {
	agent := newGatedAgent()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewSessionService(boardFactory(agent), quietLogger(), clock)
	t.Cleanup(svc.Shutdown)

	idle, _ := svc.Open(context.Background(), "alice")
	busy, _ := svc.Open(context.Background(), "alice")
	if _, err := svc.Trigger(context.Background(), "alice", busy.ID, domain.RiskTrading); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if n := svc.CloseIdle(now.Add(time.Second)); n != 1 {
		t.Fatalf("CloseIdle = %d, want 1", n)
	}
	if _, _, err := svc.Get("alice", idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session survived: %v", err)
	}
	if _, _, err := svc.Get("alice", busy.ID); err != nil {
		t.Fatalf("busy session closed: %v", err)
	}
}

func TestSessionService_ShutdownCancelsRuns(t *testing.T) {
	agent := newGatedAgent()
	svc := NewSessionService(boardFactory(agent), quietLogger(), nil)

	s, _ := svc.Open(context.Background(), "alice")
	if _, err := svc.Trigger(context.Background(), "alice", s.ID, domain.RiskTrading); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	if got := svc.List("alice"); len(got) != 0 {
		t.Fatalf("sessions after shutdown: %+v", got)
	}
	agent.mu.Lock()
	defer agent.mu.Unlock()
	if agent.polls != 0 {
		t.Fatalf("polled %d times after shutdown", agent.polls)
	}
}
