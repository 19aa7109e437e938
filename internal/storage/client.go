package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/config"
	"github.com/sony/gobreaker/v2"
)

var ErrNotConfigured = errors.New("object storage is not configured")

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("storage responded %d: %s", e.Code, e.Body)
}

// Client talks to the storage REST API. Every call runs through a circuit
// breaker that only counts transport errors and 5xx responses.
type Client struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

func NewClient(cfg config.StorageConfig, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "storage").Logger()

	st := gobreaker.Settings{
		Name:        "object-storage",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.ServiceKey,
		bucket:  cfg.Bucket,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
		logger:  logger,
	}
}

func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, objectPath)
}

// Upload stores img at objectPath without overwriting and returns its public URL.
func (c *Client) Upload(ctx context.Context, objectPath string, img Image) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, objectPath)
	_, err := c.do(ctx, http.MethodPost, url, img.Data, map[string]string{
		"Content-Type":  img.ContentType,
		"Cache-Control": "max-age=3600",
		"x-upsert":      "false",
	})
	if err != nil {
		return "", apperr.Remote("upload image", err)
	}

	c.logger.Debug().Str("path", objectPath).Int("bytes", len(img.Data)).Msg("image uploaded")
	return c.PublicURL(objectPath), nil
}

func (c *Client) Delete(ctx context.Context, objectPath string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, objectPath)
	if _, err := c.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return apperr.Remote("delete image", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("apikey", c.key)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
}
