package comment

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/komentar/service/internal/response"
	"github.com/komentar/service/internal/storage"
)

// maxUploadBytes caps the size of a submitted attachment.
const maxUploadBytes = 8 << 20

// submitTimeout bounds one whole submission, retry loop included.
const submitTimeout = 15 * time.Second

// Handler holds HTTP handlers for guestbook endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new comment Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create godoc
//
//	@Summary		Submit a comment
//	@Description	Appends a comment (optionally with a photo) to the guestbook.
//	@Tags			comments
//	@Accept			mpfd
//	@Produce		json
//	@Param			name	formData	string	false	"Author name"
//	@Param			comment	formData	string	true	"Comment text"
//	@Param			rating	formData	int		false	"Rating 0-5"
//	@Param			photo	formData	file	false	"Photo attachment"
//	@Success		201	{object}	response.Envelope{data=Record}
//	@Failure		400	{object}	response.Envelope
//	@Failure		409	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Failure		504	{object}	response.Envelope
//	@Router			/comments [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parseSubmission(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	rec, err := h.svc.Submit(ctx, in)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	response.Created(w, rec)
}

// List godoc
//
//	@Summary		List comments
//	@Description	Returns every comment in the guestbook, newest first.
//	@Tags			comments
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=[]Record}
//	@Failure		502	{object}	response.Envelope
//	@Router			/comments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrUpstream) {
			response.BadGateway(w, "upstream_unavailable", "comment store is unavailable")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, records)
}

// parseSubmission reads a multipart (or plain form) request into an Input.
// It writes the error response itself and reports ok=false on failure.
func (h *Handler) parseSubmission(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	multipart := mediaType == "multipart/form-data"

	if multipart {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			response.BadRequest(w, "invalid_form", "could not parse multipart form")
			return Input{}, false
		}
	} else if err := r.ParseForm(); err != nil {
		response.BadRequest(w, "invalid_form", "could not parse form")
		return Input{}, false
	}

	in := Input{
		Name:    r.FormValue("name"),
		Comment: r.FormValue("comment"),
	}

	if raw := strings.TrimSpace(r.FormValue("rating")); raw != "" {
		rating, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, "invalid_rating", "rating must be an integer")
			return Input{}, false
		}
		in.Rating = rating
	}

	if multipart {
		file, header, err := r.FormFile("photo")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			if err != nil {
				response.BadRequest(w, "invalid_photo", "could not read photo")
				return Input{}, false
			}
			if len(data) > maxUploadBytes {
				response.BadRequest(w, "photo_too_large", "photo exceeds the size limit")
				return Input{}, false
			}
			in.Photo = data
			in.PhotoName = header.Filename
		case errors.Is(err, http.ErrMissingFile):
			// attachment is optional
		default:
			response.BadRequest(w, "invalid_photo", "could not read photo")
			return Input{}, false
		}
	}

	return in, true
}

// writeSubmitError maps submission errors onto distinct code/message pairs.
// Internal details never reach the caller.
func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyBody):
		response.BadRequest(w, "empty_comment", "comment text is required")
	case errors.Is(err, ErrConflictExhausted):
		response.Conflict(w, "append_conflict", "too many concurrent submissions, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(w, "timeout", "submission timed out")
	case errors.Is(err, storage.ErrUpstream):
		response.BadGateway(w, "upstream_unavailable", "comment store is unavailable")
	default:
		response.InternalError(w)
	}
}
