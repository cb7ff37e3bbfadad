package transport

import (
	"errors"
	"testing"
)

func TestIsPrivateHost(t *testing.T) {
	cases := []struct {
		host    string
		private bool
	}{
		{"localhost", true},
		{"dev.localhost", true},
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"172.16.3.2", true},
		{"192.168.0.9", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"0.0.0.0", true},
		{"example.com", false},
		{"api.courier.io", false},
		{"8.8.8.8", false},
		{"172.32.0.1", false},
		{"2606:4700::1111", false},
	}
	for _, tc := range cases {
		if got := IsPrivateHost(tc.host); got != tc.private {
			t.Fatalf("IsPrivateHost(%q) = %v, want %v", tc.host, got, tc.private)
		}
	}
}

func TestCheckTargetURL(t *testing.T) {
	if err := CheckTargetURL("https://api.example.com/v1/shipments"); err != nil {
		t.Fatalf("expected public url to pass: %v", err)
	}

	err := CheckTargetURL("http://192.168.1.77:8080/data")
	if err == nil {
		t.Fatalf("expected private url to be rejected")
	}
	var private *PrivateHostError
	if !errors.As(err, &private) {
		t.Fatalf("expected PrivateHostError, got %T", err)
	}
	if private.Host != "192.168.1.77" {
		t.Fatalf("unexpected host %q", private.Host)
	}
}

func TestCheckTargetURLBracketedIPv6(t *testing.T) {
	if err := CheckTargetURL("http://[::1]:8080/data"); err == nil {
		t.Fatalf("expected loopback ipv6 to be rejected")
	}
}

func TestCheckTargetURLLeavesUnparseableAlone(t *testing.T) {
	// Later stages report the real parse failure with more context.
	if err := CheckTargetURL("http://exa mple.com/%zz"); err != nil {
		t.Fatalf("expected unparseable url to pass the private check: %v", err)
	}
}
