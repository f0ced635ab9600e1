// Package moderation runs content checks for new posts in the background
// and patches the verdict back into the post repository.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

// ErrDisabled is returned by checkers when no moderation service is configured.
var ErrDisabled = errors.New("moderation service is not configured")

// Request is the body sent to the moderation service.
type Request struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
	UserID  string   `json:"userId"`
	PostID  string   `json:"postId"`
}

// Verdict is the moderation service's answer. Missing fields decode to
// their zero values.
type Verdict struct {
	IsUnsafe bool    `json:"isUnsafe"`
	Score    float64 `json:"score"`
	Details  any     `json:"details"`
}

// Checker asks a moderation service about a single post.
type Checker interface {
	Check(ctx context.Context, req Request) (Verdict, error)
}

// HTTPChecker posts requests to a moderation endpoint.
type HTTPChecker struct {
	client *resty.Client
	url    string
}

// NewHTTPChecker builds a checker for url. Each request is bounded by timeout.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPChecker{client: client, url: url}
}

// Check sends req and decodes the verdict. Any transport error or non-2xx
// status is returned as an error.
func (c *HTTPChecker) Check(ctx context.Context, req Request) (Verdict, error) {
	if req.Images == nil {
		req.Images = []string{}
	}

	var verdict Verdict
	res, err := c.client.R().
		WithContext(ctx).
		SetBody(req).
		SetResult(&verdict).
		Post(c.url)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation request: %w", err)
	}
	if res.IsError() {
		return Verdict{}, fmt.Errorf("moderation request: unexpected status %d", res.StatusCode())
	}
	return verdict, nil
}

// Close releases idle connections.
func (c *HTTPChecker) Close() error {
	return c.client.Close()
}

type disabledChecker struct{}

func (disabledChecker) Check(context.Context, Request) (Verdict, error) {
	return Verdict{}, ErrDisabled
}

// NewChecker returns an HTTP checker for url, or a checker that always fails
// when url is blank.
func NewChecker(url string, timeout time.Duration) Checker {
	if strings.TrimSpace(url) == "" {
		return disabledChecker{}
	}
	return NewHTTPChecker(url, timeout)
}
