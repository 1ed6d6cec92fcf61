package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/sirupsen/logrus"
)

// SnapshotFetcher loads the REST snapshot behind a view. Transient failures
// are retried with exponential backoff; 401 and other client errors are not.
type SnapshotFetcher[T models.Document] struct {
	client *Client
	path   string

	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewSnapshotFetcher creates a fetcher for path with the default retry policy
func NewSnapshotFetcher[T models.Document](c *Client, path string) *SnapshotFetcher[T] {
	return &SnapshotFetcher[T]{
		client:          c,
		path:            path,
		MaxRetries:      4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Fetch returns the current snapshot
func (f *SnapshotFetcher[T]) Fetch(ctx context.Context) ([]T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.InitialInterval
	exp.MaxInterval = f.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, f.MaxRetries), ctx)

	log := f.client.logger().WithField("snapshot", f.path)
	return backoff.RetryNotifyWithData(func() ([]T, error) {
		docs, err := f.fetchOnce(ctx)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return docs, err
	}, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("snapshot fetch failed")
	})
}

func (f *SnapshotFetcher[T]) fetchOnce(ctx context.Context) ([]T, error) {
	req, err := f.client.newRequest(ctx, http.MethodGet, f.path)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", f.path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var envelope struct {
		Success bool              `json:"success"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	docs := make([]T, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		doc, err := decodeDocument[T](raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	f.client.logger().WithFields(logrus.Fields{
		"snapshot": f.path,
		"count":    len(docs),
	}).Debug("snapshot fetched")
	return docs, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDecode) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500:
			return true
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusTooManyRequests:
			return true
		}
		return false
	}
	return true
}
