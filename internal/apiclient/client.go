// Package apiclient provides an HTTP client for the auditor API.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notemesh/notemesh-audit/internal/api"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// Client talks to a running auditor's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client targeting the given base URL.
func New(base string) *Client {
	return NewWithTimeout(base, 10*time.Second)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Status fetches GET /status.
func (c *Client) Status() (*api.StatusResult, error) {
	var res api.StatusResult
	if err := c.get("/status", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Utxos fetches GET /utxos.
func (c *Client) Utxos() (*api.UtxosResult, error) {
	var res api.UtxosResult
	if err := c.get("/utxos", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Faults fetches GET /faults.
func (c *Client) Faults() (*api.FaultsResult, error) {
	var res api.FaultsResult
	if err := c.get("/faults", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FaultsAt fetches GET /faults/{addr}.
func (c *Client) FaultsAt(addr types.SpendAddress) (*api.FaultsResult, error) {
	var res api.FaultsResult
	if err := c.get("/faults/"+addr.String(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SpendAt fetches GET /spend/{addr}.
func (c *Client) SpendAt(addr types.SpendAddress) (*api.SpendResult, error) {
	var res api.SpendResult
	if err := c.get("/spend/"+addr.String(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Dot fetches the DAG in Graphviz DOT form.
func (c *Client) Dot() ([]byte, error) {
	resp, err := c.http.Get(c.base + "/dag.dot")
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

// SubmitSpend posts a signed spend to POST /spend.
func (c *Client) SubmitSpend(spend *ledger.SignedSpend) (*api.SubmitSpendResult, error) {
	body, err := json.Marshal(spend)
	if err != nil {
		return nil, fmt.Errorf("marshal spend: %w", err)
	}

	resp, err := c.http.Post(c.base+"/spend", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, data)
	}

	var res api.SubmitSpendResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

func (c *Client) get(path string, result any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &APIError{Status: status, Message: body.Error}
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}
