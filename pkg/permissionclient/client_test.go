package permissionclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestCheckPermissionAllowed(t *testing.T) {
	var gotPayload checkPermissionPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/households/internal/permissions/check" {
			t.Errorf("unexpected request path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	userID := uuid.New()
	householdID := uuid.New()

	if err := client.CheckPermission(context.Background(), userID, householdID, "CREATE_TRANSACTIONS"); err != nil {
		t.Fatalf("CheckPermission returned error: %v", err)
	}
	if gotPayload.UserID != userID || gotPayload.HouseholdID != householdID || gotPayload.Permission != "CREATE_TRANSACTIONS" {
		t.Errorf("payload mismatch: %+v", gotPayload)
	}
}

func TestCheckPermissionDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	err := client.CheckPermission(context.Background(), uuid.New(), uuid.New(), "UPDATE_TRANSACTIONS")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCheckPermissionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	err := client.CheckPermission(context.Background(), uuid.New(), uuid.New(), "VIEW_TRANSACTIONS")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Error("a 500 response must not map to ErrPermissionDenied")
	}
}
