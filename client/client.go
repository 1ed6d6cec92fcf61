// Package client keeps role-specific order lists in sync with the server:
// a REST snapshot seeds a View, a server-sent event Subscription applies
// every change, and an optional Poller re-fetches the snapshot while the
// list is non-empty.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnauthorized matches responses with status 401. It is never retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDecode is returned when a snapshot or stream message is not a valid order document
	ErrDecode = errors.New("malformed order document")
	// ErrSubscriptionUsed is returned when Run is called on a subscription twice
	ErrSubscriptionUsed = errors.New("subscription already started")
)

// StatusError is a non-2xx API response
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client holds what every request needs: where the API lives and whose token to send
type Client struct {
	BaseURL string
	Token   string

	// HTTPClient must not set a Timeout, streams stay open indefinitely
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

// New creates a client for the API at baseURL, e.g. http://localhost:8080
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{},
		Log:        logrus.StandardLogger(),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return httpClient.Do(req)
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// checkResponse turns a non-2xx response into a *StatusError, reading the
// error envelope when there is one.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(body, &envelope) == nil {
		statusErr.Code = envelope.Error.Code
		statusErr.Message = envelope.Error.Message
	}
	return statusErr
}
