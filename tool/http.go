package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMissingAPIKey is returned by constructors when no key is configured.
var ErrMissingAPIKey = errors.New("api key not set")

const noResults = "No results found"

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// StatusError reports a non-200 answer from a search backend.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api returned status: %d %s", e.Service, e.Code, e.Body)
}

func doJSON(client *http.Client, req *http.Request, service string, out any) error {
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Service: service, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
