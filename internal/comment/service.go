package comment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/komentar/service/internal/media"
)

// ErrEmptyBody is returned when a submission carries no comment text.
var ErrEmptyBody = errors.New("comment text is required")

// Service orchestrates one submission: validate, store the attachment,
// resolve its link, and append the finished record to the ledger.
type Service struct {
	uploader *media.Uploader
	resolver *media.Resolver
	ledger   *Ledger

	// Overridable for testing.
	now func() time.Time
}

// NewService wires a Service from its collaborators.
func NewService(uploader *media.Uploader, resolver *media.Resolver, ledger *Ledger) *Service {
	return &Service{
		uploader: uploader,
		resolver: resolver,
		ledger:   ledger,
		now:      time.Now,
	}
}

// Submit validates in, publishes its attachment if present, and appends the
// resulting record. A failed upload aborts the submission before any ledger
// mutation. An unresolved media link does not abort: the record is appended
// with a null media URL. The returned record is the appended one (conceptually at
// position 0, though concurrent submissions may shift it later).
func (s *Service) Submit(ctx context.Context, in Input) (Record, error) {
	body := strings.TrimSpace(in.Comment)
	if body == "" {
		return Record{}, ErrEmptyBody
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultAuthor
	}
	if in.Rating < 0 || in.Rating > 5 {
		// out-of-range ratings are recorded as submitted, not rejected
		slog.Debug("rating outside expected 0-5 range", "rating", in.Rating)
	}

	var mediaURL, mediaPath *string
	if len(in.Photo) > 0 {
		ref, err := s.uploader.Upload(ctx, in.Photo, in.PhotoName)
		if err != nil {
			return Record{}, fmt.Errorf("publish media: %w", err)
		}
		mediaPath = &ref.Path

		if link := s.resolver.Resolve(ctx, ref); link != "" {
			mediaURL = &link
		}
	}

	rec := Record{
		ID:        uuid.NewString(),
		Name:      name,
		Comment:   body,
		Rating:    in.Rating,
		MediaURL:  mediaURL,
		MediaPath: mediaPath,
		CreatedAt: s.now().UTC(),
	}

	if _, err := s.ledger.Append(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the full ledger, newest-first.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	records, _, err := s.ledger.Load(ctx)
	return records, err
}
