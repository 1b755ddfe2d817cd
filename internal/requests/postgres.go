package requests

import (
	"context"
	"database/sql"
	"fmt"
)

const insertRequestSQL = `INSERT INTO requests (
	full_name, email, phone, customer_id, request_type, subject, description,
	file_path, city, state, postal_code, preferred_contact_time
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

const listRequestsSQL = `SELECT id, submission_time, full_name, email, phone, customer_id,
	request_type, subject, description, file_path, city, state, postal_code,
	preferred_contact_time
FROM requests
ORDER BY id
LIMIT $1`

// PostgresRepository stores records in the requests table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertRequest writes rec in its own transaction on a dedicated connection
// and returns the assigned id. Failures to obtain or ping the connection wrap
// ErrConnection; any later failure wraps ErrPersistence and the transaction
// is rolled back.
func (r *PostgresRepository) InsertRequest(ctx context.Context, rec Record) (int64, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: acquire: %w", ErrConnection, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("%w: ping: %w", ErrConnection, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertRequestSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %w", ErrPersistence, err)
	}
	defer func() { _ = stmt.Close() }()

	var id int64
	err = stmt.QueryRowContext(ctx,
		rec.FullName,
		rec.Email,
		rec.Phone,
		rec.CustomerID,
		rec.RequestType,
		rec.Subject,
		rec.Description,
		nullString(rec.FilePath),
		rec.City,
		rec.State,
		rec.PostalCode,
		rec.PreferredContactTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %w", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return id, nil
}

// ListRequests returns up to limit records in id order.
func (r *PostgresRepository) ListRequests(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, listRequestsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                                  Record
			phone, customerID, filePath          sql.NullString
			city, state, postalCode, contactTime sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.SubmittedAt, &rec.FullName, &rec.Email, &phone, &customerID,
			&rec.RequestType, &rec.Subject, &rec.Description, &filePath,
			&city, &state, &postalCode, &contactTime,
		); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		rec.Phone = phone.String
		rec.CustomerID = customerID.String
		rec.FilePath = filePath.String
		rec.City = city.String
		rec.State = state.String
		rec.PostalCode = postalCode.String
		rec.PreferredContactTime = contactTime.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

// CountRequests returns the number of stored records.
func (r *PostgresRepository) CountRequests(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// ReferencedFiles returns the set of attachment names referenced by any row.
func (r *PostgresRepository) ReferencedFiles(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM requests WHERE file_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		refs[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return refs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
