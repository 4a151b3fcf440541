package store_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/serroba/contact-intake/internal/auth"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

func newPostgREST(t *testing.T, status int, body string) (*store.PostgRESTStore, *[]recordedRequest) {
	t.Helper()

	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   raw,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return store.NewPostgRESTStore(srv.URL+"/", "service-key", srv.Client()), &reqs
}

func TestPostgRESTStore_FetchPage(t *testing.T) {
	t.Run("builds query and keeps key order", func(t *testing.T) {
		s, reqs := newPostgREST(t, http.StatusOK,
			`[{"zeta":"z","id":7,"amount":12.50,"flag":true,"note":null},{"id":8,"zeta":"y"}]`)

		rows, err := s.FetchPage(context.Background(), export.PageQuery{Source: contact.Source(), Limit: 100, Offset: 200})

		require.NoError(t, err)
		require.Len(t, *reqs, 1)

		req := (*reqs)[0]
		assert.Equal(t, http.MethodGet, req.method)
		assert.Equal(t, "/rest/v1/contact_submissions", req.path)
		assert.Equal(t, "*", req.query.Get("select"))
		assert.Equal(t, "created_at.desc", req.query.Get("order"))
		assert.Equal(t, "100", req.query.Get("limit"))
		assert.Equal(t, "200", req.query.Get("offset"))
		assert.Equal(t, "service-key", req.header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", req.header.Get("Authorization"))

		require.Len(t, rows, 2)
		assert.Equal(t, []string{"zeta", "id", "amount", "flag", "note"}, rows[0].Columns())
		assert.Equal(t, []string{"id", "zeta"}, rows[1].Columns())

		amount, _ := rows[0].Get("amount")
		assert.Equal(t, json.Number("12.50"), amount)
		assert.Equal(t, "12.50", export.FormatValue(amount))
	})

	t.Run("projection and ascending order", func(t *testing.T) {
		s, reqs := newPostgREST(t, http.StatusOK, `[]`)
		src := export.Source{Table: "contact_submissions", Columns: []string{"id", "email"}, Order: export.Order{Column: "created_at"}}

		rows, err := s.FetchPage(context.Background(), export.PageQuery{Source: src, Limit: 5})

		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Equal(t, "id,email", (*reqs)[0].query.Get("select"))
		assert.Equal(t, "created_at.asc", (*reqs)[0].query.Get("order"))
	})

	t.Run("null body is empty", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusOK, `null`)

		rows, err := s.FetchPage(context.Background(), export.PageQuery{Source: contact.Source(), Limit: 5})

		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("error status", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusServiceUnavailable, `{"message":"down"}`)

		_, err := s.FetchPage(context.Background(), export.PageQuery{Source: contact.Source(), Limit: 5})

		require.ErrorIs(t, err, store.ErrUpstreamStatus)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "down")
	})

	t.Run("malformed body", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusOK, `{"not":"an array"}`)

		_, err := s.FetchPage(context.Background(), export.PageQuery{Source: contact.Source(), Limit: 5})

		assert.Error(t, err)
	})

	t.Run("truncated body", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusOK, `[{"id":1},{"id":`)

		_, err := s.FetchPage(context.Background(), export.PageQuery{Source: contact.Source(), Limit: 5})

		assert.Error(t, err)
	})

	t.Run("empty table", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusOK, `[]`)

		_, err := s.FetchPage(context.Background(), export.PageQuery{Limit: 5})

		assert.ErrorIs(t, err, store.ErrUnknownTable)
	})
}

func TestPostgRESTStore_Save(t *testing.T) {
	t.Run("posts one ordered row", func(t *testing.T) {
		s, reqs := newPostgREST(t, http.StatusCreated, ``)
		sub := submissionAt(1)

		err := s.Save(context.Background(), sub)

		require.NoError(t, err)
		require.Len(t, *reqs, 1)

		req := (*reqs)[0]
		assert.Equal(t, http.MethodPost, req.method)
		assert.Equal(t, "/rest/v1/contact_submissions", req.path)
		assert.Equal(t, "return=minimal", req.header.Get("Prefer"))
		assert.Equal(t, "application/json", req.header.Get("Content-Type"))

		var body []map[string]any

		require.NoError(t, json.Unmarshal(req.body, &body))
		require.Len(t, body, 1)
		assert.Equal(t, sub.ID.String(), body[0]["id"])
		assert.Equal(t, sub.StoredMessage(), body[0]["message"])
		assert.Nil(t, body[0]["project_value"])
	})

	t.Run("error status", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusConflict, `{"message":"duplicate key"}`)

		err := s.Save(context.Background(), submissionAt(1))

		assert.ErrorIs(t, err, store.ErrUpstreamStatus)
	})
}

func TestPostgRESTStore_RoleOf(t *testing.T) {
	t.Run("reads the profile role", func(t *testing.T) {
		s, reqs := newPostgREST(t, http.StatusOK, `[{"role":"admin"}]`)

		role, err := s.RoleOf(context.Background(), "user-1")

		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, role)
		assert.Equal(t, "/rest/v1/profiles", (*reqs)[0].path)
		assert.Equal(t, "role", (*reqs)[0].query.Get("select"))
		assert.Equal(t, "eq.user-1", (*reqs)[0].query.Get("id"))
	})

	t.Run("missing profile", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusOK, `[]`)

		_, err := s.RoleOf(context.Background(), "ghost")

		assert.ErrorIs(t, err, auth.ErrProfileNotFound)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s, _ := newPostgREST(t, http.StatusInternalServerError, `oops`)

		_, err := s.RoleOf(context.Background(), "user-1")

		assert.ErrorIs(t, err, store.ErrUpstreamStatus)
	})
}
