package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	Chat                  = "chat"
	CreateCheckoutSession = "create-checkout-session"
)

// APIError is a non-2xx answer from a remote function.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("function returned %d: %s", e.Status, e.Message)
}

// Signer issues a bearer token for a function audience.
type Signer interface {
	Sign(audience string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// URLs overrides the endpoint of individual functions.
	URLs       map[string]string
	Signer     Signer
	HTTPClient *http.Client
}

// Client invokes named remote functions (chat completion proxy, hosted
// checkout proxy) over HTTP.
type Client struct {
	baseURL    string
	urls       map[string]string
	signer     Signer
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	urls := make(map[string]string, len(cfg.URLs))
	for name, u := range cfg.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls[strings.TrimSpace(name)] = u
		}
	}
	if baseURL == "" && len(urls) == 0 {
		return nil, errors.New("functions client requires baseURL or per-function urls")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, urls: urls, signer: cfg.Signer, httpClient: httpClient}, nil
}

func (c *Client) endpoint(name string) (string, error) {
	if u, ok := c.urls[name]; ok {
		return u, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("no endpoint configured for function %q", name)
	}
	return c.baseURL + "/" + name, nil
}

// Invoke POSTs body as JSON to the named function and decodes the answer into out.
func (c *Client) Invoke(ctx context.Context, name string, body, out any) error {
	url, err := c.endpoint(name)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		token, err := c.signer.Sign(name)
		if err != nil {
			return fmt.Errorf("sign %s request: %w", name, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}
