// Package captcha verifies reCAPTCHA v3 tokens.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultEndpoint = "https://www.google.com/recaptcha/api/siteverify"
	DefaultMinScore = 0.3
	DefaultTimeout  = 5 * time.Second
)

var (
	ErrMissingToken = errors.New("captcha token missing")
	ErrRejected     = errors.New("captcha rejected")
	ErrUnavailable  = errors.New("captcha service unavailable")
)

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Recaptcha checks tokens against the siteverify API. A verifier without a
// secret accepts every token.
type Recaptcha struct {
	secret   string
	endpoint string
	minScore float64
	client   *http.Client
	logger   *zap.Logger
}

// Option configures a Recaptcha verifier.
type Option func(*Recaptcha)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(r *Recaptcha) { r.endpoint = endpoint }
}

// WithMinScore overrides DefaultMinScore.
func WithMinScore(score float64) Option {
	return func(r *Recaptcha) { r.minScore = score }
}

// NewRecaptcha creates a verifier. A nil client gets DefaultTimeout.
func NewRecaptcha(secret string, client *http.Client, logger *zap.Logger, opts ...Option) *Recaptcha {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	r := &Recaptcha{
		secret:   secret,
		endpoint: DefaultEndpoint,
		minScore: DefaultMinScore,
		client:   client,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Enabled reports whether a secret is configured.
func (r *Recaptcha) Enabled() bool {
	return r.secret != ""
}

func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	if !r.Enabled() {
		return nil
	}

	if token == "" {
		return ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)

	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("captcha verification failed", zap.Error(err))

		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}

	if !body.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(body.ErrorCodes, ","))
	}

	if body.Score < r.minScore {
		r.logger.Info("captcha score below threshold",
			zap.Float64("score", body.Score),
			zap.Float64("minScore", r.minScore),
			zap.String("action", body.Action),
		)

		return fmt.Errorf("%w: score %.2f", ErrRejected, body.Score)
	}

	return nil
}
