package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/middleware"
	"go.uber.org/zap"
)

// Submitter runs the submission pipeline.
type Submitter interface {
	Submit(ctx context.Context, meta contact.Meta, in contact.Input) (*contact.Receipt, error)
}

// ContactHandler handles contact form submissions.
type ContactHandler struct {
	submitter Submitter
	logger    *zap.Logger
}

// NewContactHandler creates a new contact handler.
func NewContactHandler(submitter Submitter, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{submitter: submitter, logger: logger}
}

func (h *ContactHandler) Submit(ctx context.Context, req *SubmitContactRequest) (*SubmitContactResponse, error) {
	rm := middleware.RequestMetaFromContext(ctx)
	meta := contact.Meta{
		ClientIP:     rm.ClientIP,
		ForwardedFor: rm.ForwardedFor,
		RemoteAddr:   rm.RemoteAddr,
		UserAgent:    rm.UserAgent,
	}

	token := req.RecaptchaToken
	if token == "" {
		token = req.Body.RecaptchaToken
	}

	receipt, err := h.submitter.Submit(ctx, meta, contact.Input{
		Name:            req.Body.Name,
		Company:         req.Body.Company,
		Email:           req.Body.Email,
		Phone:           req.Body.Phone,
		ProjectType:     req.Body.ProjectType,
		ProjectValue:    req.Body.ProjectValue,
		Location:        req.Body.Location,
		Message:         req.Body.Message,
		RequestProposal: req.Body.RequestProposal,
		Honeypot:        req.Body.HoneypotField,
		CaptchaToken:    token,
	})
	if err != nil {
		return nil, h.submitError(err)
	}

	resp := &SubmitContactResponse{}
	resp.Body.Status = "ok"
	resp.Body.Reference = receipt.Reference

	return resp, nil
}

func (h *ContactHandler) submitError(err error) error {
	var denied *contact.DeniedError

	switch {
	case errors.As(err, &denied):
		return huma.ErrorWithHeaders(
			huma.Error429TooManyRequests("too many requests",
				&huma.ErrorDetail{Location: "retryAfter", Value: denied.RetryAfter}),
			http.Header{"Retry-After": {strconv.Itoa(denied.RetryAfter)}},
		)
	case errors.Is(err, contact.ErrCaptchaFailed):
		return huma.Error400BadRequest("reCAPTCHA failed")
	case errors.Is(err, contact.ErrStoreFailed):
		return huma.Error502BadGateway("failed to store submission")
	default:
		h.logger.Error("contact submission failed", zap.Error(err))

		return huma.Error500InternalServerError("internal server error")
	}
}
