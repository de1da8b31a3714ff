package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append([]byte("echo: "), body...))
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func gunzipBody(t *testing.T, body io.Reader) string {
	t.Helper()

	gr, err := gzip.NewReader(body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer gr.Close()

	b, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	return string(b)
}

func TestGzipMiddleware_CompressesWhenAccepted(t *testing.T) {
	payload := `{"availableSlots":["09:00","09:30"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(payload))
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", ce)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
	if got := gunzipBody(t, res.Body); got != "echo: "+payload {
		t.Fatalf("body = %q", got)
	}
}

func TestGzipMiddleware_PassthroughWhenNotAccepted(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader("plain payload"))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if ce := res.Header.Get("Content-Encoding"); ce != "" {
		t.Fatalf("content-encoding = %q, want empty", ce)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "echo: plain payload" {
		t.Fatalf("body = %q", string(body))
	}
}

func TestGzipMiddleware_DecompressesRequestBody(t *testing.T) {
	payload := `{"qrData":"{\"paymentUniqueCode\":\"AB23CD45\"}"}`

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/validate", gzipBytes(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "echo: "+payload {
		t.Fatalf("body = %q", string(body))
	}
}

func TestGzipMiddleware_CompressedRoundTrip(t *testing.T) {
	payload := "compressed both ways"

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", gzipBytes(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", ce)
	}
	if got := gunzipBody(t, res.Body); got != "echo: "+payload {
		t.Fatalf("body = %q", got)
	}
}
