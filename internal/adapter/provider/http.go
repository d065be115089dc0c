package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPConfig describes a JSON ACH provider. With TokenURL set the client
// authenticates with OAuth2 client credentials, otherwise with APIKey.
type HTTPConfig struct {
	ID           string
	BaseURL      string
	APIKey       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// HTTP talks to the provider's batch API.
type HTTP struct {
	id     string
	base   string
	apiKey string
	client *http.Client
}

func NewHTTP(ctx context.Context, cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("provider base url: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "http"
	}

	base := http.DefaultClient
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		base = cc.Client(ctx)
	}
	client := &http.Client{
		Transport: otelhttp.NewTransport(base.Transport),
		Timeout:   cfg.Timeout,
	}
	return &HTTP{
		id:     cfg.ID,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: client,
	}, nil
}

func (h *HTTP) ID() string { return h.id }

func (h *HTTP) Submit(ctx context.Context, req submission.SubmitRequest) (*submission.SubmitResponse, error) {
	var out submission.SubmitResponse
	err := h.do(ctx, http.MethodPost, "/v1/ach/batches", req.IdempotencyKey, req, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Status looks a submission up by the key it was sent with.
func (h *HTTP) Status(ctx context.Context, idempotencyKey string) (*submission.SubmitResponse, error) {
	var out submission.SubmitResponse
	err := h.do(ctx, http.MethodGet, "/v1/ach/batches/by-key/"+url.PathEscape(idempotencyKey), "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTP) Void(ctx context.Context, providerPaymentID, reason string) error {
	body := map[string]string{"reason": reason}
	return h.do(ctx, http.MethodPost, "/v1/ach/payments/"+url.PathEscape(providerPaymentID)+"/void", "", body, nil)
}

type errorBody struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors"`
}

func (h *HTTP) do(ctx context.Context, method, path, idemKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &apperrors.ProviderError{
			Retryable: true,
			Timeout:   errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
			Err:       err,
		}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &apperrors.ProviderError{Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return apperrors.Wrap(apperrors.ErrNotFound, "provider has no submission for this key")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &apperrors.ProviderError{Retryable: true, Messages: messages(raw, resp.Status)}
	case resp.StatusCode >= 400:
		return &apperrors.ProviderError{Messages: messages(raw, resp.Status)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperrors.ProviderError{Err: fmt.Errorf("decode provider response: %w", err)}
	}
	return nil
}

func messages(raw []byte, status string) []string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if len(eb.Errors) > 0 {
			return eb.Errors
		}
		if eb.Error != "" {
			return []string{eb.Error}
		}
	}
	return []string{status}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
