package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/contact-intake/internal/export"
	"go.uber.org/zap"
)

const (
	// TruncatedTrailer reports whether a streamed export ended early.
	TruncatedTrailer = "X-Export-Truncated"
	exportFilename   = "submissions.csv"
)

// SubmissionLister returns one page of stored submissions.
type SubmissionLister interface {
	List(ctx context.Context, limit, offset int) ([]export.Row, error)
}

// ExportStarter fetches the first page of an export.
type ExportStarter interface {
	Begin(ctx context.Context, req export.Request) (*export.Export, error)
}

// SubmissionsHandler serves stored submissions to administrators.
type SubmissionsHandler struct {
	lister   SubmissionLister
	exporter ExportStarter
	pageSize int
	logger   *zap.Logger
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(
	lister SubmissionLister,
	exporter ExportStarter,
	pageSize int,
	logger *zap.Logger,
) *SubmissionsHandler {
	return &SubmissionsHandler{
		lister:   lister,
		exporter: exporter,
		pageSize: pageSize,
		logger:   logger,
	}
}

// List returns submissions as JSON or, when requested, streams them as CSV.
// Upstream failures before the first byte is written answer 502.
func (h *SubmissionsHandler) List(ctx context.Context, req *ListSubmissionsRequest) (*huma.StreamResponse, error) {
	if req.WantsExport() {
		return h.export(ctx, req)
	}

	rows, err := h.lister.List(ctx, req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("failed to list submissions", zap.Error(err))

		return nil, huma.Error502BadGateway("failed to fetch submissions")
	}

	if rows == nil {
		rows = []export.Row{}
	}

	body, err := json.Marshal(struct {
		Data []export.Row `json:"data"`
	}{Data: rows})
	if err != nil {
		return nil, huma.Error500InternalServerError("internal server error")
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "application/json")
			hctx.SetHeader("Content-Length", strconv.Itoa(len(body)))
			hctx.SetStatus(http.StatusOK)

			_, _ = hctx.BodyWriter().Write(body)
		},
	}, nil
}

func (h *SubmissionsHandler) export(ctx context.Context, req *ListSubmissionsRequest) (*huma.StreamResponse, error) {
	exp, err := h.exporter.Begin(ctx, export.Request{
		Limit:    req.Limit,
		PageSize: h.pageSize,
		Offset:   req.Offset,
	})
	if err != nil {
		if errors.Is(err, export.ErrInvalidRequest) {
			return nil, huma.Error400BadRequest(err.Error())
		}

		h.logger.Error("export failed before streaming", zap.Error(err))

		return nil, huma.Error502BadGateway("failed to fetch submissions")
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "text/csv")
			hctx.SetHeader("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
			hctx.SetHeader("Trailer", TruncatedTrailer)
			hctx.SetStatus(http.StatusOK)

			res, err := exp.Run(hctx.Context(), hctx.BodyWriter())
			if err != nil {
				h.logger.Warn("export write failed", zap.Int("rows", res.Rows), zap.Error(err))

				res.Truncated = true
			}

			hctx.SetHeader(TruncatedTrailer, strconv.FormatBool(res.Truncated))

			h.logger.Info("export finished",
				zap.Int("rows", res.Rows),
				zap.Int("pages", res.Pages),
				zap.Bool("truncated", res.Truncated),
			)
		},
	}, nil
}
