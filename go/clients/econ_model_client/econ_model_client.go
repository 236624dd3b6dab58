package econ_model_client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/solowsim/go/clients"
)

// EconModelClient talks to the deterministic economic calculation engine.
type EconModelClient struct {
	*clients.BaseClient
}

func NewEconModelClient(baseURL string, timeout time.Duration) *EconModelClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &EconModelClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetHeader("Accept", "application/json")
	return client
}

// NewEconModelClientWithHTTP builds a client on a caller supplied http.Client.
func NewEconModelClientWithHTTP(baseURL string, httpClient *http.Client) *EconModelClient {
	client := &EconModelClient{
		BaseClient: clients.NewBaseClientWithHTTP(baseURL, httpClient),
	}
	client.SetHeader("Accept", "application/json")
	return client
}

// errorResponse covers the error shapes the engine answers with.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func decode(body []byte, out any) error {
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return fmt.Errorf("engine returned error: %s", errResp.Error)
		}
		if errResp.Detail != "" {
			return fmt.Errorf("engine returned error: %s", errResp.Detail)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}
