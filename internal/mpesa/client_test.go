package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/bookings/payments/callback",
	}
}

func TestGetAccessToken_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/v1/generate" {
			t.Fatalf("path = %s, want /oauth/v1/generate", r.URL.Path)
		}
		if r.URL.Query().Get("grant_type") != "client_credentials" {
			t.Fatalf("grant_type = %s, want client_credentials", r.URL.Query().Get("grant_type"))
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Fatalf("unexpected basic auth: %s:%s", user, pass)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "token-123"})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	token, err := client.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetAccessToken error: %v", err)
	}
	if token != "token-123" {
		t.Fatalf("token = %q, want token-123", token)
	}
}

func TestGetAccessToken_Denied(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	_, err := client.GetAccessToken(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
}

func TestGetAccessToken_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(testConfig(ts.URL))

	_, err := client.GetAccessToken(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
}

func TestPushPayment_OK(t *testing.T) {
	fixed := time.Date(2025, 6, 2, 10, 30, 45, 0, time.UTC)

	var got pushRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mpesa/stkpush/v1/processrequest" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-123" {
			t.Fatalf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode push request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pushResponse{
			MerchantRequestID: "mr-1",
			CheckoutRequestID: "cr-1",
			ResponseCode:      "0",
		})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))
	client.now = func() time.Time { return fixed }

	res, err := client.PushPayment(context.Background(), "token-123", 500, "254712345678", "Booking-42")
	if err != nil {
		t.Fatalf("PushPayment error: %v", err)
	}
	if res.MerchantRequestID != "mr-1" || res.CheckoutRequestID != "cr-1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got.Timestamp != "20250602103045" {
		t.Fatalf("timestamp = %q, want 20250602103045", got.Timestamp)
	}
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + "20250602103045"))
	if got.Password != wantPassword {
		t.Fatalf("password = %q, want %q", got.Password, wantPassword)
	}
	if got.Amount != 500 || got.PartyA != "254712345678" || got.PhoneNumber != "254712345678" {
		t.Fatalf("unexpected push body: %+v", got)
	}
	if got.TransactionType != "CustomerPayBillOnline" {
		t.Fatalf("transaction type = %q", got.TransactionType)
	}
	if got.AccountReference != "Booking-42" {
		t.Fatalf("account reference = %q", got.AccountReference)
	}
}

func TestPushPayment_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
		},
		{
			name: "nonzero response code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(pushResponse{
					ResponseCode:        "1",
					ResponseDescription: "insufficient funds",
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			client := NewClient(testConfig(ts.URL))

			_, err := client.PushPayment(context.Background(), "token", 100, "254712345678", "Booking-1")
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("error = %v, want ErrRejected", err)
			}
		})
	}
}

func TestPushPayment_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(testConfig(ts.URL))

	_, err := client.PushPayment(context.Background(), "token", 100, "254712345678", "Booking-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}
