package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/autonoc/internal/worker"
)

type stubPipeline struct {
	actions []string
}

func (s *stubPipeline) Run(ctx context.Context, action string) (*worker.Summary, error) {
	s.actions = append(s.actions, action)
	return &worker.Summary{Action: action}, nil
}

func newWorkerApp(stub *stubPipeline) *fiber.App {
	app := fiber.New()
	h := NewWorkerHandler(stub)
	app.Get("/worker", h.RunOrList)
	app.Post("/worker", h.Run)
	return app
}

func TestWorkerGetWithActionRunsPipeline(t *testing.T) {
	stub := &stubPipeline{}
	app := newWorkerApp(stub)

	resp, err := app.Test(httptest.NewRequest("GET", "/worker?action=sync", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(stub.actions) != 1 || stub.actions[0] != worker.ActionSync {
		t.Fatalf("pipeline runs = %v, want [sync]", stub.actions)
	}
}

func TestWorkerGetWithoutActionListsActions(t *testing.T) {
	stub := &stubPipeline{}
	app := newWorkerApp(stub)

	resp, err := app.Test(httptest.NewRequest("GET", "/worker", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(stub.actions) != 0 {
		t.Fatalf("pipeline must not run without an action, got %v", stub.actions)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), worker.ActionAll) {
		t.Fatalf("listing should name %q, got %s", worker.ActionAll, body)
	}
}

func TestWorkerPostDefaultsToAll(t *testing.T) {
	stub := &stubPipeline{}
	app := newWorkerApp(stub)

	resp, err := app.Test(httptest.NewRequest("POST", "/worker", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(stub.actions) != 1 || stub.actions[0] != worker.ActionAll {
		t.Fatalf("pipeline runs = %v, want [all]", stub.actions)
	}
}
