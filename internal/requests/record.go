// Package requests stores customer service request records.
package requests

import (
	"context"
	"errors"
	"time"
)

// Storage failures surfaced to the submission processor.
var (
	// ErrConnection means no usable database connection could be obtained.
	ErrConnection = errors.New("database connection failed")
	// ErrPersistence means a connection was available but the insert did not commit.
	ErrPersistence = errors.New("request insert failed")
)

// Record is one row of the requests table.
type Record struct {
	ID          int64
	SubmittedAt time.Time

	FullName    string
	Email       string
	Phone       string
	CustomerID  string
	RequestType string
	Subject     string
	Description string

	// FilePath is the stored attachment name; empty is persisted as NULL.
	FilePath string

	City                 string
	State                string
	PostalCode           string
	PreferredContactTime string
}

// Repository persists request records. ID and SubmittedAt are assigned by
// the store; the values on rec are ignored.
type Repository interface {
	InsertRequest(ctx context.Context, rec Record) (int64, error)
}

// Reader is implemented by stores that can list what was persisted.
type Reader interface {
	ListRequests(ctx context.Context, limit int) ([]Record, error)
	CountRequests(ctx context.Context) (int64, error)
	ReferencedFiles(ctx context.Context) (map[string]struct{}, error)
}
