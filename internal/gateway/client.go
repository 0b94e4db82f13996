package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"parley/internal/config"
)

const defaultBaseURL = "http://127.0.0.1:7171"

// Client speaks the gateway's two interfaces: a request/response RPC call
// and a subscribable event stream.
type Client struct {
	baseURL   string
	tokenPath string
	token     string
	http      *http.Client
}

func New(baseURL string) (*Client, error) {
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		tokenPath: tokenPath,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func NewWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Request performs one RPC round trip. A non-2xx response decodes into
// *APIError.
func (c *Client) Request(ctx context.Context, method string, params any, out any) error {
	if strings.TrimSpace(method) == "" {
		return errors.New("method is required")
	}
	buf, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rpc", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.ensureToken(); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ensureToken() error {
	if strings.TrimSpace(c.token) != "" {
		return nil
	}
	if c.tokenPath == "" {
		return errors.New("gateway token not configured")
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("gateway token not found; is the gateway running?")
		}
		return err
	}
	c.token = strings.TrimSpace(string(data))
	if c.token == "" {
		return errors.New("gateway token is empty")
	}
	return nil
}

// APIError is a non-2xx RPC response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("gateway returned status %d", e.StatusCode)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var decoded APIError
		if json.Unmarshal(body, &decoded) == nil {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}
	return apiErr
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
