package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vibin/derma-chat/internal/core/domain"
)

const (
	kindBadRequest     = "bad_request"
	kindUploadTooLarge = "upload_too_large"
	kindUnavailable    = "unavailable"
)

// errBadForm marks a request body that is not a readable form
var errBadForm = errors.New("malformed form")

// turnForm is the parsed multipart body of a turn request
type turnForm struct {
	sessionID  string
	query      string
	history    string
	hasHistory bool
	image      *domain.ImageRef
}

// parseTurnForm reads the file, user_query, chat_history and session_id
// fields. An empty or missing file means the turn carries no image.
func (h *Handler) parseTurnForm(w http.ResponseWriter, r *http.Request) (*turnForm, error) {
	maxBytes := h.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, badRequest(err)
	}

	form := &turnForm{
		sessionID: strings.TrimSpace(r.FormValue("session_id")),
		query:     r.FormValue("user_query"),
	}
	if values, ok := r.Form["chat_history"]; ok && len(values) > 0 {
		form.history = values[0]
		form.hasHistory = true
	}

	image, err := readImage(r)
	if err != nil {
		return nil, err
	}
	form.image = image

	return form, nil
}

// readImage loads the uploaded file, trusting its declared content type when
// it is an accepted image type and sniffing the bytes otherwise
func readImage(r *http.Request) (*domain.ImageRef, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest(err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mimeType, err := domain.NormalizeImageType(header.Header.Get("Content-Type"))
	if err != nil {
		mimeType, err = domain.DetectImageType(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", header.Filename, err)
		}
	}

	image := domain.EncodeImage(data, mimeType)
	return &image, nil
}

func badRequest(err error) error {
	return &requestError{err: err}
}

// requestError is a client error that has no domain kind of its own
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%v: %v", errBadForm, e.err)
}

func (e *requestError) Unwrap() error {
	return e.err
}
