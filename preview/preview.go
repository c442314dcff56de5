package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/Tutortoise/ovaquick/models"
	"github.com/disintegration/imaging"
)

var ErrTooManyPixels = errors.New("image exceeds the preview pixel budget")

// DataURL renders a staged upload as something an <img> tag can show. Decodable images are
// auto-oriented and shrunk to fit maxDim; anything else is embedded as-is with its sniffed
// content type. An empty upload yields "".
func DataURL(img models.Image, maxDim int) string {
	if img.Empty() {
		return ""
	}
	if maxDim < MinMaxDim {
		maxDim = DefaultMaxDim
	}

	thumb, err := Thumbnail(img.Data, maxDim)
	if err != nil {
		return rawDataURL(img)
	}
	return thumb
}

// Thumbnail decodes data and returns a PNG data URL no larger than maxDim on either side.
// Images above MaxPixels are rejected from their header, before any pixel is decoded.
func Thumbnail(data []byte, maxDim int) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var dst image.Image = src
	b := src.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		dst = imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// rawDataURL embeds the bytes unchanged. A declared type is kept only when it is an image type;
// otherwise the type is sniffed from the content.
func rawDataURL(img models.Image) string {
	ct := http.DetectContentType(img.Data)
	if mt, _, err := mime.ParseMediaType(img.ContentType); err == nil && strings.HasPrefix(mt, "image/") {
		ct = mt
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
