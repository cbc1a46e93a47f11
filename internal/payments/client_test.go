package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitializeTransaction(t *testing.T) {
	t.Run("posts the transaction and returns the checkout url", func(t *testing.T) {
		var got InitializeRequest
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  true,
				"message": "Authorization URL created",
				"data": map[string]any{
					"authorization_url": "https://checkout.paystack.com/abc123",
					"access_code":       "abc123",
					"reference":         got.Reference,
				},
			})
		}))
		defer server.Close()

		client := NewClient("sk_test_secret", WithBaseURL(server.URL))
		resp, err := client.InitializeTransaction(context.Background(), InitializeRequest{
			Email:     "ada@example.com",
			Amount:    250000,
			Reference: "order_abc_1",
			Metadata:  map[string]string{"orderId": "abc"},
		})
		if err != nil {
			t.Fatalf("initialize failed: %v", err)
		}

		if gotAuth != "Bearer sk_test_secret" {
			t.Errorf("unexpected authorization header: %q", gotAuth)
		}
		if got.Amount != 250000 || got.Email != "ada@example.com" {
			t.Errorf("unexpected request payload: %+v", got)
		}
		if resp.AuthorizationURL != "https://checkout.paystack.com/abc123" {
			t.Errorf("unexpected authorization url: %s", resp.AuthorizationURL)
		}
		if resp.Reference != "order_abc_1" {
			t.Errorf("unexpected reference: %s", resp.Reference)
		}
	})

	t.Run("surfaces api errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  false,
				"message": "Invalid amount",
			})
		}))
		defer server.Close()

		client := NewClient("sk_test_secret", WithBaseURL(server.URL))
		_, err := client.InitializeTransaction(context.Background(), InitializeRequest{})
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestVerifyTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/order_abc_1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]any{
				"status":    "success",
				"reference": "order_abc_1",
				"amount":    250000,
				"metadata":  map[string]string{"orderId": "abc"},
			},
		})
	}))
	defer server.Close()

	client := NewClient("sk_test_secret", WithBaseURL(server.URL))
	resp, err := client.VerifyTransaction(context.Background(), "order_abc_1")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if resp.Status != "success" || resp.Amount != 250000 {
		t.Errorf("unexpected verification result: %+v", resp)
	}
	if resp.Metadata["orderId"] != "abc" {
		t.Errorf("expected metadata to carry the order id, got %v", resp.Metadata)
	}
}
