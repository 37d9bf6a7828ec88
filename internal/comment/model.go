// Package comment implements the shared guestbook ledger: an ordered,
// append-only collection of comment records persisted as a single object in
// the object store, plus the submission flow that feeds it.
package comment

import "time"

// DefaultAuthor is recorded when a submission carries no name.
const DefaultAuthor = "Anonim"

// Record is one immutable guestbook entry. Records are stored newest-first
// in the ledger; a record's position is not a stable identifier, its ID is.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Comment   string    `json:"comment"`
	Rating    int       `json:"rating"`
	MediaURL  *string   `json:"media_url"`
	MediaPath *string   `json:"media_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Input is a single comment submission before validation.
type Input struct {
	Name    string
	Comment string
	Rating  int

	// Optional attachment.
	Photo     []byte
	PhotoName string
}
