package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLister struct {
	rows  []export.Row
	err   error
	calls [][2]int
}

func (m *mockLister) List(_ context.Context, limit, offset int) ([]export.Row, error) {
	m.calls = append(m.calls, [2]int{limit, offset})

	return m.rows, m.err
}

type mockExporter struct {
	err error
}

func (m *mockExporter) Begin(_ context.Context, _ export.Request) (*export.Export, error) {
	return nil, m.err
}

// pagedSource serves total rows and fails every fetch whose offset is in failAt.
func pagedSource(total int, failAt ...int) export.FetchFunc {
	return func(_ context.Context, q export.PageQuery) ([]export.Row, error) {
		for _, off := range failAt {
			if q.Offset == off {
				return nil, errors.New("upstream timeout")
			}
		}

		var rows []export.Row

		for i := q.Offset; i < min(q.Offset+q.Limit, total); i++ {
			rows = append(rows, export.NewRow(
				[]string{"id", "email"},
				[]any{i, fmt.Sprintf("user%d@example.com", i)},
			))
		}

		return rows, nil
	}
}

func setupSubmissionsAPI(t *testing.T, lister handlers.SubmissionLister, exporter handlers.ExportStarter) humatest.TestAPI {
	t.Helper()

	_, api := humatest.New(t)
	handlers.RegisterRoutes(api,
		handlers.NewContactHandler(&mockSubmitter{}, zap.NewNop()),
		handlers.NewSubmissionsHandler(lister, exporter, 10, zap.NewNop()),
		passThrough,
	)

	return api
}

func newStreamer(fetcher export.PageFetcher) *export.Streamer {
	return export.NewStreamer(fetcher, export.Source{Table: "contact_submissions"}, zap.NewNop(),
		export.WithPause(0))
}

func TestSubmissionsHandler_List(t *testing.T) {
	t.Run("returns rows as data", func(t *testing.T) {
		lister := &mockLister{rows: []export.Row{
			export.NewRow([]string{"id", "email"}, []any{1, "a@example.com"}),
		}}
		api := setupSubmissionsAPI(t, lister, &mockExporter{})

		resp := api.Get("/admin/submissions?limit=5&offset=2")

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"data":[{"id":1,"email":"a@example.com"}]}`, resp.Body.String())
		assert.Equal(t, [][2]int{{5, 2}}, lister.calls)
	})

	t.Run("defaults limit and offset", func(t *testing.T) {
		lister := &mockLister{}
		api := setupSubmissionsAPI(t, lister, &mockExporter{})

		resp := api.Get("/admin/submissions")

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"data":[]}`, resp.Body.String())
		assert.Equal(t, [][2]int{{100, 0}}, lister.calls)
	})

	t.Run("upstream failure is bad gateway", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{err: errors.New("down")}, &mockExporter{})

		resp := api.Get("/admin/submissions")

		assert.Equal(t, http.StatusBadGateway, resp.Code)
	})

	t.Run("rejects negative offset", func(t *testing.T) {
		lister := &mockLister{}
		api := setupSubmissionsAPI(t, lister, &mockExporter{})

		resp := api.Get("/admin/submissions?offset=-1")

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Empty(t, lister.calls)
	})
}

func TestSubmissionsHandler_Export(t *testing.T) {
	t.Run("streams every page as csv", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(25)))

		resp := api.Get("/admin/submissions?export=1&limit=100")

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="submissions.csv"`, resp.Header().Get("Content-Disposition"))

		lines := strings.Split(strings.TrimSuffix(resp.Body.String(), "\n"), "\n")
		require.Len(t, lines, 26)
		assert.Equal(t, "id,email", lines[0])
		assert.Equal(t, `"0","user0@example.com"`, lines[1])
		assert.Equal(t, `"24","user24@example.com"`, lines[25])
		assert.Equal(t, "false", resp.Result().Trailer.Get(handlers.TruncatedTrailer))
	})

	t.Run("export=true is accepted", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(3)))

		resp := api.Get("/admin/submissions?export=true")

		assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	})

	t.Run("respects limit", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(100)))

		resp := api.Get("/admin/submissions?export=1&limit=15")

		lines := strings.Split(strings.TrimSuffix(resp.Body.String(), "\n"), "\n")
		assert.Len(t, lines, 16)
	})

	t.Run("empty source is empty body", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(0)))

		resp := api.Get("/admin/submissions?export=1")

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, resp.Body.String())
	})

	t.Run("first page failure is bad gateway before any csv", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(25, 0)))

		resp := api.Get("/admin/submissions?export=1")

		assert.Equal(t, http.StatusBadGateway, resp.Code)
		assert.NotEqual(t, "text/csv", resp.Header().Get("Content-Type"))
		assert.NotContains(t, resp.Body.String(), "id,email")
	})

	t.Run("later page failure truncates", func(t *testing.T) {
		api := setupSubmissionsAPI(t, &mockLister{}, newStreamer(pagedSource(25, 10)))

		resp := api.Get("/admin/submissions?export=1")

		require.Equal(t, http.StatusOK, resp.Code)

		lines := strings.Split(strings.TrimSuffix(resp.Body.String(), "\n"), "\n")
		assert.Len(t, lines, 11)
		assert.Equal(t, "true", resp.Result().Trailer.Get(handlers.TruncatedTrailer))
	})
}
