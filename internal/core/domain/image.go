package domain

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Supported image MIME types
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
)

// ImageRef is a self-describing, transport-safe reference to an uploaded image
type ImageRef struct {
	MIMEType   string `json:"mimeType"`
	Base64Data string `json:"base64Data"`
}

// EncodeImage turns raw image bytes into an ImageRef. It never fails; the MIME
// type is stored as given and should be checked with NormalizeImageType first.
func EncodeImage(data []byte, mimeType string) ImageRef {
	return ImageRef{
		MIMEType:   mimeType,
		Base64Data: base64.StdEncoding.EncodeToString(data),
	}
}

// Bytes decodes the base64 payload back to the original image bytes
func (r ImageRef) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Base64Data)
}

// DataURL formats the reference as data:<mime>;base64,<payload>
func (r ImageRef) DataURL() string {
	return "data:" + r.MIMEType + ";base64," + r.Base64Data
}

// ParseDataURL is the inverse of DataURL. Only JPEG and PNG payloads are accepted.
func ParseDataURL(url string) (ImageRef, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return ImageRef{}, fmt.Errorf("not a data URL")
	}

	mimeType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return ImageRef{}, fmt.Errorf("data URL is not base64 encoded")
	}

	mimeType, err := NormalizeImageType(mimeType)
	if err != nil {
		return ImageRef{}, err
	}

	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return ImageRef{}, fmt.Errorf("invalid base64 payload: %w", err)
	}

	return ImageRef{MIMEType: mimeType, Base64Data: payload}, nil
}

// NormalizeImageType validates an uploaded image's MIME type and maps aliases
// such as image/jpg onto the canonical form.
func NormalizeImageType(mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch mt {
	case MIMETypeJPEG, "image/jpg", "image/pjpeg":
		return MIMETypeJPEG, nil
	case MIMETypePNG, "image/x-png":
		return MIMETypePNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, mimeType)
	}
}

// DetectImageType sniffs the image bytes for callers that don't send a content type
func DetectImageType(data []byte) (string, error) {
	return NormalizeImageType(http.DetectContentType(data))
}
