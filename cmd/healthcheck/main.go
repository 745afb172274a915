// Package main provides a lightweight health check utility for Docker containers.
// It is statically compiled so it works in scratch-based images where standard
// tools (wget, curl) are unavailable.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultPort    = "3001"
	requestTimeout = 5 * time.Second
	exitSuccess    = 0
	exitFailure    = 1
)

// buildAddress uses 127.0.0.1 rather than localhost so the probe resolves
// inside scratch images without /etc/hosts.
func buildAddress(port string) string {
	return "127.0.0.1:" + port
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	healthURL := fmt.Sprintf("http://%s/health", buildAddress(port))

	client := &http.Client{
		Timeout: requestTimeout,
	}

	resp, err := client.Get(healthURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(exitFailure)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Close immediately since os.Exit bypasses deferred calls
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check returned non-OK status: %d\n", resp.StatusCode)
		os.Exit(exitFailure)
	}

	// The endpoint reports per-dependency state; a healthy HTTP layer with a
	// degraded database still counts as down for container scheduling.
	if err == nil {
		if status := gjson.GetBytes(body, "status"); status.Exists() && status.String() != "healthy" {
			fmt.Fprintf(os.Stderr, "Health check reported status %q\n", status.String())
			os.Exit(exitFailure)
		}
	}

	os.Exit(exitSuccess)
}
