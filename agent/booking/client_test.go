package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

func TestCreateAppointmentSendsIdempotencyKey(t *testing.T) {
	t.Parallel()

	var gotKey, gotAuth string
	var gotBody contractx.BookingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/appointments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(contractx.BookingConfirmation{BookingID: "b1", Status: "confirmed"})
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	confirmation, err := client.CreateAppointment(context.Background(), contractx.BookingRequest{
		TenantID:       "t1",
		Service:        "Teeth whitening",
		At:             "2026-09-01T10:00:00Z",
		IdempotencyKey: "abc123",
	})
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if confirmation.BookingID != "b1" || confirmation.Status != "confirmed" {
		t.Fatalf("confirmation = %+v", confirmation)
	}
	if gotKey != "abc123" {
		t.Fatalf("idempotency key = %q, want abc123", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody.Service != "Teeth whitening" || gotBody.TenantID != "t1" {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestCreateAppointmentRejectsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slot taken", http.StatusConflict)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.CreateAppointment(context.Background(), contractx.BookingRequest{
		TenantID: "t1",
		Service:  "Teeth whitening",
		At:       "2026-09-01T10:00:00Z",
	}); err == nil {
		t.Fatal("expected error on conflict response")
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{BaseURL: "   "}); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewClient(Config{BaseURL: "::not-a-url"}); err == nil {
		t.Fatal("expected error for malformed base url")
	}
}
