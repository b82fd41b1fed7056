// Package dataurl converts between raster images and the self-describing
// "data:<mime>;base64,<payload>" strings every component exchanges.
package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

const defaultMimeType = "image/png"

// MaxPixels bounds width*height of any image this package decodes. The
// header is checked before the pixel buffer is allocated.
const MaxPixels = 50_000_000

var (
	ErrEmpty     = errors.New("dataurl: image is empty")
	ErrMalformed = errors.New("dataurl: malformed data url")
	ErrTooLarge  = errors.New("dataurl: image dimensions too large")
)

// Encode renders img as a PNG data URL.
func Encode(img image.Image) (string, error) {
	if img == nil {
		return "", ErrEmpty
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("dataurl: encode png: %w", err)
	}
	return FromBytes(defaultMimeType, buf.Bytes()), nil
}

// EncodePNGBytes wraps already-encoded PNG bytes.
func EncodePNGBytes(data []byte) string {
	return FromBytes(defaultMimeType, data)
}

// FromBytes builds a data URL for data with the given mime type.
func FromBytes(mimeType string, data []byte) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Split separates the mime type from the base64 payload. A bare payload
// without the data: prefix is accepted and reported as image/png.
func Split(raw string) (mimeType string, payload string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", ErrEmpty
	}
	if !strings.HasPrefix(trimmed, "data:") {
		if idx := strings.IndexByte(trimmed, ','); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if trimmed == "" {
			return "", "", ErrEmpty
		}
		return defaultMimeType, trimmed, nil
	}

	header, body, ok := strings.Cut(trimmed[len("data:"):], ",")
	if !ok {
		return "", "", ErrMalformed
	}
	mediaType, encoding, _ := strings.Cut(header, ";")
	if !strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		return "", "", fmt.Errorf("%w: only base64 payloads are supported", ErrMalformed)
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = defaultMimeType
	}
	if body == "" {
		return "", "", ErrEmpty
	}
	return mediaType, body, nil
}

// Bytes returns the decoded payload together with its mime type.
func Bytes(raw string) ([]byte, string, error) {
	mimeType, payload, err := Split(raw)
	if err != nil {
		return nil, "", err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	return data, mimeType, nil
}

// Decode parses the data URL into an image. The returned string is the
// format name reported by the image package (png, jpeg, gif, webp).
func Decode(raw string) (image.Image, string, error) {
	data, _, err := Bytes(raw)
	if err != nil {
		return nil, "", err
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an encoded image after checking its header against
// MaxPixels.
func DecodeBytes(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("dataurl: decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: %dx%d image", ErrMalformed, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("dataurl: decode image: %w", err)
	}
	return img, format, nil
}
