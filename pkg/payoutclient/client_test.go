package payoutclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreatePayout_SendsFormAndHeaders(t *testing.T) {
	var gotForm map[string]string
	var gotAuth, gotIdem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payouts" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"po_123","object":"payout","status":"pending","amount":500000,"currency":"eur"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "sk_test")
	payout, err := client.CreatePayout(context.Background(), PayoutRequest{
		Amount:              500000,
		Currency:            "EUR",
		Method:              "standard",
		StatementDescriptor: "Payouts",
		Destination:         "ba_eur",
		IdempotencyKey:      "key-1",
		Metadata:            map[string]string{"reference": "INV-1"},
	})
	if err != nil {
		t.Fatalf("CreatePayout returned error: %v", err)
	}
	if payout.ID != "po_123" || payout.Status != "pending" || payout.Amount != 500000 || payout.Currency != "eur" {
		t.Fatalf("unexpected payout: %+v", payout)
	}

	want := map[string]string{
		"amount":               "500000",
		"currency":             "eur",
		"method":               "standard",
		"statement_descriptor": "Payouts",
		"destination":          "ba_eur",
		"metadata[reference]":  "INV-1",
	}
	for key, value := range want {
		if gotForm[key] != value {
			t.Fatalf("form %s: expected %q, got %q", key, value, gotForm[key])
		}
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotIdem != "key-1" {
		t.Fatalf("unexpected idempotency header %q", gotIdem)
	}
}

func TestCreatePayout_OmitsEmptyDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if _, ok := r.PostForm["destination"]; ok {
			t.Errorf("destination should be omitted when empty")
		}
		_, _ = w.Write([]byte(`{"id":"po_1","status":"paid","amount":12000,"currency":"usd"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	if _, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: 12000, Currency: "usd"}); err != nil {
		t.Fatalf("CreatePayout returned error: %v", err)
	}
}

func TestCreatePayout_StructuredError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	_, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: 100, Currency: "gbp"})

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != http.StatusBadRequest || providerErr.Code != "balance_insufficient" {
		t.Fatalf("unexpected provider error: %+v", providerErr)
	}
}

func TestCreatePayout_UnparsableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	_, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: 100, Currency: "gbp"})

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 ProviderError, got %v", err)
	}
}

func TestCreatePayout_MissingAPIKey(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "  ")
	if _, err := client.CreatePayout(context.Background(), PayoutRequest{Amount: 1, Currency: "usd"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
