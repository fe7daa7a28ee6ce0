package handler

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/rs/zerolog"
)

func clientKeys(s *Server, remoteAddr string, forwarded ...string) []string {
	var keys []string
	h := s.realIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		keys = append(keys, clientIP(r))
	}))

	for _, xff := range forwarded {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	return keys
}

func TestClientKeyIgnoresForwardingHeadersFromUntrustedPeer(t *testing.T) {
	logger := zerolog.Nop()
	s := NewServer(ServerParams{Logger: &logger})

	keys := clientKeys(s, "203.0.113.7:4242", "1.1.1.1", "2.2.2.2", "3.3.3.3")
	for _, key := range keys {
		if key != "203.0.113.7" {
			t.Fatalf("expected every request keyed by the peer address, got %v", keys)
		}
	}

	s = NewServer(ServerParams{Logger: &logger, TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}})
	keys = clientKeys(s, "203.0.113.7:4242", "1.1.1.1", "2.2.2.2")
	for _, key := range keys {
		if key != "203.0.113.7" {
			t.Fatalf("expected a peer outside the trusted range to be keyed by its own address, got %v", keys)
		}
	}
}

func TestClientKeyUsesForwardingHeadersFromTrustedProxy(t *testing.T) {
	logger := zerolog.Nop()
	s := NewServer(ServerParams{Logger: &logger, TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}})

	keys := clientKeys(s, "10.1.2.3:5555", "198.51.100.9")
	if len(keys) != 1 || keys[0] != "198.51.100.9" {
		t.Fatalf("expected the forwarded client address, got %v", keys)
	}
}
