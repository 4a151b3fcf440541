package contact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/messaging"
	"github.com/serroba/contact-intake/internal/notify"
	"github.com/serroba/contact-intake/internal/ratelimit"
	"go.uber.org/zap"
)

// Repository persists submissions and serves them back in pages.
type Repository interface {
	Save(ctx context.Context, s *Submission) error
	export.PageFetcher
}

// CaptchaVerifier checks a client captcha token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// ReferenceGenerator produces the public reference code of a submission.
type ReferenceGenerator func() string

// Input is the form as submitted by a client.
type Input struct {
	Name            string
	Company         string
	Email           string
	Phone           string
	ProjectType     string
	ProjectValue    string
	Location        string
	Message         string
	RequestProposal bool
	Honeypot        string
	CaptchaToken    string
}

// Meta describes where a submission came from.
type Meta struct {
	ClientIP     string
	ForwardedFor string
	RemoteAddr   string
	UserAgent    string
}

// Receipt is returned for an accepted request. Discarded receipts were
// caught by the honeypot and stored nothing.
type Receipt struct {
	Reference  string
	Discarded  bool
	Submission *Submission
}

// Service runs the submission pipeline.
type Service struct {
	repo      Repository
	admission ratelimit.Controller
	captcha   CaptchaVerifier
	publish   messaging.Publish[notify.SubmissionEvent]
	reference ReferenceGenerator
	now       func() time.Time
	logger    *zap.Logger

	trustForwarded bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithCaptcha enables captcha verification.
func WithCaptcha(v CaptchaVerifier) ServiceOption {
	return func(s *Service) { s.captcha = v }
}

// WithPublisher publishes contact.submitted after each stored submission.
func WithPublisher(p messaging.Publish[notify.SubmissionEvent]) ServiceOption {
	return func(s *Service) { s.publish = p }
}

// WithoutForwardedFor keys admission on email and peer address only. Use it
// when no proxy in front of the service overwrites X-Forwarded-For, since
// clients can otherwise pick a fresh key per request.
func WithoutForwardedFor() ServiceOption {
	return func(s *Service) { s.trustForwarded = false }
}

// NewService creates a submission service.
func NewService(
	repo Repository,
	admission ratelimit.Controller,
	reference ReferenceGenerator,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:      repo,
		admission: admission,
		reference: reference,
		now:       time.Now,
		logger:    logger,

		trustForwarded: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit runs honeypot, admission, captcha, persistence and notification in
// that order. Notification failures are logged and do not fail the call.
func (s *Service) Submit(ctx context.Context, meta Meta, in Input) (*Receipt, error) {
	if strings.TrimSpace(in.Honeypot) != "" {
		s.logger.Info("honeypot triggered", zap.String("clientIp", meta.ClientIP))

		return &Receipt{Discarded: true}, nil
	}

	forwarded := meta.ForwardedFor
	if !s.trustForwarded {
		forwarded = ""
	}

	key := ratelimit.KeyFor(forwarded, in.Email, meta.RemoteAddr)
	if !s.admission.IsAllowed(ctx, key) {
		return nil, &DeniedError{
			Key:        key,
			RetryAfter: max(s.admission.RemainingSeconds(ctx, key), 1),
		}
	}

	if s.captcha != nil {
		if err := s.captcha.Verify(ctx, in.CaptchaToken, meta.ClientIP); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCaptchaFailed, err)
		}
	}

	sub := &Submission{
		ID:              uuid.New(),
		Reference:       s.reference(),
		Name:            strings.TrimSpace(in.Name),
		Company:         strings.TrimSpace(in.Company),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		ProjectType:     in.ProjectType,
		ProjectValue:    in.ProjectValue,
		Location:        strings.TrimSpace(in.Location),
		Message:         strings.TrimSpace(in.Message),
		RequestProposal: in.RequestProposal,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.repo.Save(ctx, sub); err != nil {
		s.logger.Error("failed to store submission",
			zap.String("reference", sub.Reference),
			zap.Error(err),
		)

		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	if s.publish != nil {
		if err := s.publish(ctx, sub.Event(meta)); err != nil {
			s.logger.Error("failed to publish submission event",
				zap.String("reference", sub.Reference),
				zap.Error(err),
			)
		}
	}

	return &Receipt{Reference: sub.Reference, Submission: sub}, nil
}

// List returns one page of stored submissions, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]export.Row, error) {
	rows, err := s.repo.FetchPage(ctx, export.PageQuery{Source: Source(), Limit: limit, Offset: offset})
	if err != nil {
		return nil, &export.UpstreamError{Offset: offset, Limit: limit, Err: err}
	}

	return rows, nil
}
