package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/contact-intake/internal/auth"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/export"
)

// PostgresStore is a PostgreSQL implementation of contact.Repository and
// auth.RoleLookup.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed submission store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Save(ctx context.Context, s *contact.Submission) error {
	query := `
		INSERT INTO contact_submissions (
			id, reference, created_at, email, phone, project_type,
			project_value, location, message, request_proposal
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := p.pool.Exec(ctx, query, s.Values()...)

	return err
}

// FetchPage runs one LIMIT/OFFSET query. Column names and order come from
// the result set.
func (p *PostgresStore) FetchPage(ctx context.Context, q export.PageQuery) ([]export.Row, error) {
	query, err := buildPageQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))

	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []export.Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		for i := range values {
			values[i] = normalize(values[i])
		}

		out = append(out, export.NewRow(columns, values))
	}

	return out, rows.Err()
}

func (p *PostgresStore) RoleOf(ctx context.Context, subject string) (string, error) {
	var role string

	err := p.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, subject).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrProfileNotFound
		}

		return "", err
	}

	return role, nil
}

// Ping checks connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// buildPageQuery renders q with quoted identifiers. Limit and offset are
// bound as $1 and $2.
func buildPageQuery(q export.PageQuery) (string, error) {
	if q.Table == "" {
		return "", fmt.Errorf("%w: empty table name", ErrUnknownTable)
	}

	selectList := "*"

	if len(q.Columns) > 0 {
		cols := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = pgx.Identifier{c}.Sanitize()
		}

		selectList = strings.Join(cols, ", ")
	}

	var b strings.Builder

	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList, pgx.Identifier{q.Table}.Sanitize())

	if q.Order.Column != "" {
		dir := "ASC"
		if q.Order.Descending {
			dir = "DESC"
		}

		fmt.Fprintf(&b, " ORDER BY %s %s", pgx.Identifier{q.Order.Column}.Sanitize(), dir)
	}

	b.WriteString(" LIMIT $1 OFFSET $2")

	return b.String(), nil
}

var (
	_ contact.Repository = (*PostgresStore)(nil)
	_ auth.RoleLookup    = (*PostgresStore)(nil)
)
