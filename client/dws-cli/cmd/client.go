package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/bigballadanny/dwschatbot/internal/config"
	pkghttp "github.com/bigballadanny/dwschatbot/pkg/http"
	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
)

// newClient returns an HTTP client with the shared request timeout. The
// circuit breaker stays disabled for a one-shot CLI.
func newClient() *pkghttp.Client {
	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{})
	if err != nil {
		log.Fatalf("Error creating HTTP client: %v", err)
	}
	return client
}

// doRequest performs one authenticated request and returns the response
// body. A non-2xx response ends the program with the server's error.
func doRequest(method, url, contentType string, body io.Reader) []byte {
	requireUser()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		log.Fatalf("Error creating request: %v", err)
	}
	req.Header.Set(httpmiddleware.HeaderUserID, userID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := newClient().Do(req)
	if err != nil {
		log.Fatalf("Error contacting %s: %v", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		log.Fatalf("Request failed (%s): %s", resp.Status, bytes.TrimSpace(data))
	}
	return data
}

func requireUser() {
	if userID == "" {
		log.Fatalf("A user id is required: pass --user or set DWS_USER")
	}
}

// printJSON pretty prints a JSON payload, falling back to the raw bytes.
func printJSON(data []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}
