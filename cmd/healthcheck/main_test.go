package main

import (
	"strings"
	"testing"
)

// TestBuildAddress verifies the probe target for a range of ports
func TestBuildAddress(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		expected string
	}{
		{name: "Default port", port: defaultPort, expected: "127.0.0.1:3001"},
		{name: "Custom port", port: "8080", expected: "127.0.0.1:8080"},
		{name: "Low port", port: "80", expected: "127.0.0.1:80"},
		{name: "High port", port: "65535", expected: "127.0.0.1:65535"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildAddress(tt.port); got != tt.expected {
				t.Errorf("buildAddress(%q) = %q, want %q", tt.port, got, tt.expected)
			}
		})
	}
}

// TestBuildAddressUsesIPv4 ensures the probe never depends on name resolution.
// Scratch images ship without /etc/hosts, so "localhost" would not resolve.
func TestBuildAddressUsesIPv4(t *testing.T) {
	address := buildAddress("3001")

	if !strings.HasPrefix(address, "127.0.0.1:") {
		t.Errorf("buildAddress must dial 127.0.0.1, got %q", address)
	}
	if strings.Contains(address, "localhost") {
		t.Error("buildAddress must not use 'localhost'")
	}
}
