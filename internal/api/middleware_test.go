package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateToken(t *testing.T) {
	request := httptest.NewRequest("GET", "/api/status", nil)
	if !validateToken(request, "") {
		t.Fatal("empty token should disable auth")
	}
	if validateToken(request, "secret") {
		t.Fatal("request without credentials accepted")
	}

	request = httptest.NewRequest("GET", "/api/status", nil)
	request.Header.Set("Authorization", "Bearer secret")
	if !validateToken(request, "secret") {
		t.Fatal("bearer token rejected")
	}
	request.Header.Set("Authorization", "Bearer wrong")
	if validateToken(request, "secret") {
		t.Fatal("wrong bearer token accepted")
	}

	request = httptest.NewRequest("GET", "/api/status?token=secret", nil)
	if !validateToken(request, "secret") {
		t.Fatal("query token rejected")
	}
	request = httptest.NewRequest("GET", "/api/status?token=wrong", nil)
	if validateToken(request, "secret") {
		t.Fatal("wrong query token accepted")
	}
}

func TestIsOriginAllowed(t *testing.T) {
	request := httptest.NewRequest("GET", "/ws/execute", nil)
	request.Host = "localhost:8899"
	if !isOriginAllowed(request, nil) {
		t.Fatal("request without origin rejected")
	}

	request.Header.Set("Origin", "http://localhost:3000")
	if !isOriginAllowed(request, nil) {
		t.Fatal("same-host origin rejected")
	}

	request.Header.Set("Origin", "http://evil.example")
	if isOriginAllowed(request, nil) {
		t.Fatal("cross-host origin accepted without allowlist")
	}

	if !isOriginAllowed(request, []string{"evil.example"}) {
		t.Fatal("allowlisted host rejected")
	}
	if !isOriginAllowed(request, []string{"http://evil.example"}) {
		t.Fatal("allowlisted origin rejected")
	}
	if isOriginAllowed(request, []string{"other.example"}) {
		t.Fatal("non-allowlisted origin accepted")
	}

	request.Header.Set("Origin", "::bad::")
	if isOriginAllowed(request, nil) {
		t.Fatal("malformed origin accepted")
	}
}

func TestHostOnly(t *testing.T) {
	cases := map[string]string{
		"localhost:8899": "localhost",
		"localhost":      "localhost",
		"[::1]:8899":     "::1",
		"[::1]":          "::1",
	}
	for input, want := range cases {
		if got := hostOnly(input); got != want {
			t.Fatalf("hostOnly(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncateCloseReason(t *testing.T) {
	if got := truncateCloseReason("boom"); got != "boom" {
		t.Fatalf("short reason mangled: %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := truncateCloseReason(long); len(got) != 123 {
		t.Fatalf("long reason not truncated to close-frame limit: %d bytes", len(got))
	}
}

func TestErrorCodeForStatus(t *testing.T) {
	if code := errorCodeForStatus(404); code != "not_found" {
		t.Fatalf("404 -> %q", code)
	}
	if code := errorCodeForStatus(500); code != "internal_error" {
		t.Fatalf("500 -> %q", code)
	}
	if code := errorCodeForStatus(200); code != "" {
		t.Fatalf("200 -> %q", code)
	}
}
