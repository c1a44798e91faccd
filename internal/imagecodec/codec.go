package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"regexp"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var dataURLRegex = regexp.MustCompile(`^data:([^;]+);base64,`)

// DecodeBase64 turns a base64 image string, with or without a data-URL
// prefix, into raw bytes plus a mime type. The bytes are validated as a
// decodable raster image.
func DecodeBase64(value string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, "", errors.New("empty image data")
	}

	mimeType := "image/png"
	if matches := dataURLRegex.FindStringSubmatch(value); len(matches) == 2 {
		mimeType = matches[1]
	}
	_ = mimeType
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[idx+1:]
	}

	buf, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 data: %w", err)
	}
	if len(buf) == 0 {
		return nil, "", errors.New("empty image data")
	}

	format, err := Validate(buf)
	if err != nil {
		return nil, "", err
	}
	return buf, "image/" + format, nil
}

// Validate confirms the buffer decodes as a supported raster format
// (png, jpeg, gif, webp, bmp) and returns the detected format name.
func Validate(buf []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("invalid image format: %w", err)
	}
	return format, nil
}

// EncodeBase64 returns the buffer as plain base64.
func EncodeBase64(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// DataURL wraps the buffer in a data URL for clients that render inline.
func DataURL(buf []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, EncodeBase64(buf))
}

// ReEncode transcodes the buffer into the requested format. Only png and
// jpeg outputs are supported; anything else falls back to png.
func ReEncode(buf []byte, format string) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, "", fmt.Errorf("invalid image format: %w", err)
	}

	var out bytes.Buffer
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 95}); err != nil {
			return nil, "", err
		}
		return out.Bytes(), "image/jpeg", nil
	default:
		if err := png.Encode(&out, img); err != nil {
			return nil, "", err
		}
		return out.Bytes(), "image/png", nil
	}
}
