package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/agriclip/chat-service/internal/models"
)

var ErrBackendUnavailable = errors.New("classification backend unavailable")

type HTTPBackendConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

// HTTPBackend calls the model service over JSON/HTTP with retry and a
// circuit breaker in front of it.
type HTTPBackend struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	conf    HTTPBackendConfig
}

func NewHTTPBackend(conf HTTPBackendConfig) *HTTPBackend {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	if conf.RetryMaxElapsed <= 0 {
		conf.RetryMaxElapsed = 2 * time.Minute
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "model-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &HTTPBackend{
		base:    conf.BaseURL,
		http:    &http.Client{Transport: tr, Timeout: conf.Timeout},
		breaker: cb,
		conf:    conf,
	}
}

type classifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Classification *models.ClassificationResult `json:"classification"`
	} `json:"data"`
}

func (b *HTTPBackend) Classify(ctx context.Context, req ClassifyRequest) (*models.ClassificationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var result *models.ClassificationResult
	operation := func() error {
		out, err := b.breaker.Execute(func() (interface{}, error) {
			return b.doClassify(ctx, body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out.(*models.ClassificationResult)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return result, nil
}

func (b *HTTPBackend) doClassify(ctx context.Context, body []byte) (*models.ClassificationResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("model backend returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("model backend rejected request: %d", resp.StatusCode))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(err)
	}
	if !out.Success || out.Data.Classification == nil {
		return nil, backoff.Permanent(fmt.Errorf("model backend failure: %s", out.Message))
	}
	return out.Data.Classification, nil
}
