// Command healthcheck probes the relay's /healthz endpoint and exits non-zero
// when it is unreachable or unhealthy. It is meant for container HEALTHCHECKs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, healthURL(os.Getenv("HTTP_ADDR")), nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// healthURL maps the server's bind address to a local probe URL.
func healthURL(addr string) string {
	switch {
	case addr == "":
		addr = "localhost:8080"
	case addr[0] == ':':
		addr = "localhost" + addr
	}
	return "http://" + addr + "/healthz"
}
