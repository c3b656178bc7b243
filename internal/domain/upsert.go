package domain

import "time"

// UpsertStatus is the per-record outcome of a batch upsert.
type UpsertStatus string

const (
	UpsertInserted UpsertStatus = "inserted"
	UpsertUpdated  UpsertStatus = "updated"
	// UpsertStale means the stored copy was modified at or after the incoming
	// copy's UpdatedAt, so the write was skipped (last write wins).
	UpsertStale UpsertStatus = "stale"
)

// UpsertOutcome reports what a batch upsert did with one record.
type UpsertOutcome struct {
	ID       string       `json:"id"`
	Slug     string       `json:"slug,omitempty"`
	Status   UpsertStatus `json:"status"`
	Stored   *time.Time   `json:"storedUpdatedAt,omitempty"`
	Incoming time.Time    `json:"incomingUpdatedAt"`
}
