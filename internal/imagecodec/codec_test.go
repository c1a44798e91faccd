package imagecodec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeBase64WithDataURL(t *testing.T) {
	raw := pngBytes(t)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	buf, mimeType, err := DecodeBase64(dataURL)
	require.NoError(t, err)
	assert.Equal(t, raw, buf)
	assert.Equal(t, "image/png", mimeType)
}

func TestDecodeBase64Bare(t *testing.T) {
	raw := pngBytes(t)

	buf, mimeType, err := DecodeBase64(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, buf)
	assert.Equal(t, "image/png", mimeType)
}

func TestDecodeBase64Rejects(t *testing.T) {
	_, _, err := DecodeBase64("")
	assert.Error(t, err)

	_, _, err = DecodeBase64("not base64 at all!!!")
	assert.Error(t, err)

	// valid base64, not an image
	_, _, err = DecodeBase64(base64.StdEncoding.EncodeToString([]byte("plain text")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	format, err := Validate(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = Validate([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestDataURLRoundTrip(t *testing.T) {
	raw := pngBytes(t)
	url := DataURL(raw, "image/png")
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	back, mimeType, err := DecodeBase64(url)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
	assert.Equal(t, "image/png", mimeType)
}

func TestReEncode(t *testing.T) {
	raw := pngBytes(t)

	out, mimeType, err := ReEncode(raw, "jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	format, err := Validate(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	// unknown formats fall back to png
	out, mimeType, err = ReEncode(raw, "tiff")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	format, err = Validate(out)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
