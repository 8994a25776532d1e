package notifications_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"petlabel/internal/notifications"
	"petlabel/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	service := notifications.NewService(cfg)
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification returned error: %v", err)
	}
	if err := service.NotifyReviewApproved(context.Background(), "alice", 1); err != nil {
		t.Fatalf("noop NotifyReviewApproved returned error: %v", err)
	}
}

func TestNtfyServicePostsToTopic(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []*http.Request
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Clone(context.Background()))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Review = true
	cfg.Notifications.Rework = true

	service := notifications.NewService(cfg)
	if err := service.NotifyReviewApproved(context.Background(), "alice", 7); err != nil {
		t.Fatalf("NotifyReviewApproved failed: %v", err)
	}
	if err := service.NotifyReworkRequested(context.Background(), "alice", 7, "Lighting"); err != nil {
		t.Fatalf("NotifyReworkRequested failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if title := requests[0].Header.Get("Title"); title != "Petlabel - Approved" {
		t.Fatalf("unexpected title header: %q", title)
	}
	if priority := requests[1].Header.Get("Priority"); priority != "high" {
		t.Fatalf("expected high priority rework push, got %q", priority)
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for disabled event")
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.EditRequests = false

	service := notifications.NewService(cfg)
	if err := service.NotifyEditRequestDecided(context.Background(), "alice", 1, true); err != nil {
		t.Fatalf("disabled event returned error: %v", err)
	}
}
