package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RelayError is a non-2xx answer from the secret relay.
type RelayError struct {
	Status  int
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("secret relay returned %d: %s", e.Status, e.Message)
}

// RelayKeySource fetches the completion API key from the backend relay
// (GET /api/secret -> {"key": "..."}), so the key never ships with the client.
type RelayKeySource struct {
	URL    string
	Client *http.Client
}

func (r *RelayKeySource) Key(ctx context.Context) (string, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("secret relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read secret relay response: %w", err)
	}

	var payload struct {
		Key   string `json:"key"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK {
		msg := payload.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &RelayError{Status: resp.StatusCode, Message: msg}
	}
	if payload.Key == "" {
		return "", &RelayError{Status: resp.StatusCode, Message: "API key not found"}
	}
	return payload.Key, nil
}
