package ledgerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCreateTransactionSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload CreateTransactionParams

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Internal-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"transaction_id": "txn-abc"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	params := CreateTransactionParams{
		HouseholdID:     uuid.New(),
		RequestorID:     uuid.New(),
		Amount:          500_000,
		Currency:        "NGN",
		SourceAccountID: uuid.New(),
		Description:     "Rent - Monthly rent payment",
		Date:            time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
	}

	transactionID, err := client.CreateTransaction(context.Background(), params)
	if err != nil {
		t.Fatalf("CreateTransaction returned error: %v", err)
	}
	if transactionID != "txn-abc" {
		t.Errorf("expected transaction id txn-abc, got %s", transactionID)
	}
	if gotPath != "/transactions/internal/transactions" {
		t.Errorf("unexpected request path %s", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("internal API key not forwarded, got %q", gotKey)
	}
	if gotPayload.Amount != params.Amount || gotPayload.Currency != params.Currency {
		t.Errorf("payload mismatch: %+v", gotPayload)
	}
}

func TestCreateTransactionErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	_, err := client.CreateTransaction(context.Background(), CreateTransactionParams{})
	if err == nil {
		t.Fatal("expected an error for a 422 response")
	}
}

func TestCreateTransactionMissingTransactionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	_, err := client.CreateTransaction(context.Background(), CreateTransactionParams{})
	if err == nil {
		t.Fatal("expected an error when the response has no transaction id")
	}
}

func TestCreateTransactionRequiresBaseURL(t *testing.T) {
	client := NewClient("", "secret-key")
	_, err := client.CreateTransaction(context.Background(), CreateTransactionParams{})
	if err == nil {
		t.Fatal("expected an error when the base URL is empty")
	}
}
