package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup by ID matches nothing.
var ErrNotFound = errors.New("storage: not found")

// Store is the catalog persistence surface used by the HTTP layer and the
// CLI. Implementations must be safe for concurrent use.
type Store interface {
	// CreateFlightLog inserts a record together with its tag set. Tag names
	// are lowercased and created on first use.
	CreateFlightLog(ctx context.Context, log *FlightLog, tagNames []string) error

	// FlightLog loads one record with tags and attachments, or ErrNotFound.
	FlightLog(ctx context.Context, id string) (*FlightLog, error)

	// ListFlightLogs applies the filter and returns one page ordered by
	// flight date descending.
	ListFlightLogs(ctx context.Context, filter ListFilter) (*Page, error)

	// UpdateFlightLog applies the non-nil fields and returns the updated
	// record, or ErrNotFound.
	UpdateFlightLog(ctx context.Context, id string, upd FlightLogUpdate) (*FlightLog, error)

	// DeleteFlightLog removes the record, its tag links and attachment rows.
	DeleteFlightLog(ctx context.Context, id string) error

	// Tags lists tags ordered by name, optionally filtered by a
	// case-insensitive substring.
	Tags(ctx context.Context, search string) ([]Tag, error)

	// CreateTag returns the existing tag of that name or creates it.
	CreateTag(ctx context.Context, name string) (Tag, error)

	// Stats aggregates flight counts and hours across the catalog.
	Stats(ctx context.Context) (Stats, error)

	// Pilots returns distinct pilot names sorted alphabetically.
	Pilots(ctx context.Context) ([]string, error)

	// CheckDuplicates probes each (serial, identifier) pair for an existing
	// record.
	CheckDuplicates(ctx context.Context, items []Duplicate) ([]Duplicate, error)

	// CreateAttachment inserts one attachment row.
	CreateAttachment(ctx context.Context, att *Attachment) error

	// Attachments lists a log's attachments ordered by creation time.
	Attachments(ctx context.Context, logID string) ([]Attachment, error)

	// Attachment loads one attachment scoped to its log, or ErrNotFound.
	Attachment(ctx context.Context, logID, attachmentID string) (*Attachment, error)

	// DeleteAttachment removes one attachment row, or ErrNotFound.
	DeleteAttachment(ctx context.Context, logID, attachmentID string) error

	Close() error
}
