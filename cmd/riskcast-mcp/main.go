// Command riskcast-mcp bridges stdio MCP clients to a running riskcast
// server. It forwards newline-delimited JSON-RPC messages from stdin to the
// server's /mcp endpoint and writes responses back to stdout, so editor and
// agent integrations that only speak stdio can use the shared server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	serverURL := os.Getenv("RISKCAST_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8090"
	}

	proxy := &StdioProxy{
		serverURL: serverURL + "/mcp",
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // simulations can take a while
		},
	}

	if err := proxy.RunWithIO(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "proxy error: %v\n", err)
		os.Exit(1)
	}
}
