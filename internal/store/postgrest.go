package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/serroba/contact-intake/internal/auth"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/export"
)

// DefaultRESTTimeout applies when no client is supplied.
const DefaultRESTTimeout = 15 * time.Second

// PostgRESTStore reads and writes tables through a PostgREST endpoint
// (for example Supabase) using a service key.
type PostgRESTStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPostgRESTStore creates a store for baseURL. A nil client gets
// DefaultRESTTimeout.
func NewPostgRESTStore(baseURL, apiKey string, client *http.Client) *PostgRESTStore {
	if client == nil {
		client = &http.Client{Timeout: DefaultRESTTimeout}
	}

	return &PostgRESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (p *PostgRESTStore) Save(ctx context.Context, s *contact.Submission) error {
	body, err := json.Marshal([]export.Row{s.Row()})
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, contact.Table, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := p.do(req)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// FetchPage issues
// GET /rest/v1/{table}?select=...&order=col.desc&limit=n&offset=m and keeps
// the key order of every returned object.
func (p *PostgRESTStore) FetchPage(ctx context.Context, q export.PageQuery) ([]export.Row, error) {
	if q.Table == "" {
		return nil, fmt.Errorf("%w: empty table name", ErrUnknownTable)
	}

	params := url.Values{}
	params.Set("select", "*")

	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	}

	if q.Order.Column != "" {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}

		params.Set("order", q.Order.Column+"."+dir)
	}

	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))

	req, err := p.newRequest(ctx, http.MethodGet, q.Table, params, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeRows(resp.Body)
}

func (p *PostgRESTStore) RoleOf(ctx context.Context, subject string) (string, error) {
	params := url.Values{}
	params.Set("select", "role")
	params.Set("id", "eq."+subject)

	req, err := p.newRequest(ctx, http.MethodGet, "profiles", params, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var profiles []struct {
		Role string `json:"role"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return "", fmt.Errorf("decode profiles: %w", err)
	}

	if len(profiles) == 0 {
		return "", auth.ErrProfileNotFound
	}

	return profiles[0].Role, nil
}

func (p *PostgRESTStore) newRequest(
	ctx context.Context, method, table string, params url.Values, body io.Reader,
) (*http.Request, error) {
	u := p.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	return req, nil
}

// do sends req and turns non-2xx responses into ErrUpstreamStatus.
func (p *PostgRESTStore) do(req *http.Request) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("%w: %s %s: %d %s",
			ErrUpstreamStatus, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}

// decodeRows reads a JSON array of objects without losing key order.
// Numbers are kept as json.Number.
func decodeRows(r io.Reader) ([]export.Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	if tok == nil {
		return nil, nil
	}

	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("decode rows: expected [, got %v", tok)
	}

	var rows []export.Row

	for dec.More() {
		row, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}

		rows = append(rows, row)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	return rows, nil
}

func decodeObject(dec *json.Decoder) (export.Row, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return export.Row{}, err
	}

	var (
		columns []string
		values  []any
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return export.Row{}, fmt.Errorf("decode key: %w", err)
		}

		key, ok := tok.(string)
		if !ok {
			return export.Row{}, fmt.Errorf("decode key: unexpected %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return export.Row{}, fmt.Errorf("decode %s: %w", key, err)
		}

		columns = append(columns, key)
		values = append(values, v)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return export.Row{}, err
	}

	return export.NewRow(columns, values), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}

	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("decode rows: expected %v, got %v", want, tok)
	}

	return nil
}

var (
	_ contact.Repository = (*PostgRESTStore)(nil)
	_ auth.RoleLookup    = (*PostgRESTStore)(nil)
)
