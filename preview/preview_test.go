package preview

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"runtime"
	"strings"
	"testing"

	"github.com/Tutortoise/ovaquick/models"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 140, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix), url)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestDataURLShrinksLargeImages(t *testing.T) {
	data := encodeTestImage(t, 600, 400, imaging.JPEG)

	img := decodeDataURL(t, DataURL(models.Image{ContentType: "image/jpeg", Data: data}, 300))
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestDataURLKeepsSmallImages(t *testing.T) {
	data := encodeTestImage(t, 40, 20, imaging.PNG)

	img := decodeDataURL(t, DataURL(models.Image{Data: data}, 300))
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestDataURLInvalidMaxDimFallsBackToDefault(t *testing.T) {
	data := encodeTestImage(t, 900, 900, imaging.PNG)

	img := decodeDataURL(t, DataURL(models.Image{Data: data}, 0))
	assert.Equal(t, DefaultMaxDim, img.Bounds().Dx())
}

func TestDataURLEmbedsUndecodableBytes(t *testing.T) {
	tests := []struct {
		name string
		img  models.Image
		want string
	}{
		{
			name: "sniffed content type",
			img:  models.Image{Data: []byte("hello")},
			want: "data:text/plain; charset=utf-8;base64,aGVsbG8=",
		},
		{
			name: "declared image type",
			img:  models.Image{ContentType: "image/x-dicom", Data: []byte("hello")},
			want: "data:image/x-dicom;base64,aGVsbG8=",
		},
		{
			name: "declared non-image type is replaced by the sniffed one",
			img:  models.Image{ContentType: "text/html", Data: []byte("hello")},
			want: "data:text/plain; charset=utf-8;base64,aGVsbG8=",
		},
		{
			name: "declared type parameters are dropped",
			img:  models.Image{ContentType: `image/png; x="a,javascript:alert(1)"`, Data: []byte("hello")},
			want: "data:image/png;base64,aGVsbG8=",
		},
		{
			name: "malformed declared type",
			img:  models.Image{ContentType: "image/png,<x>;;", Data: []byte("hello")},
			want: "data:text/plain; charset=utf-8;base64,aGVsbG8=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DataURL(tt.img, 300))
		})
	}
}

func TestDataURLEmpty(t *testing.T) {
	assert.Equal(t, "", DataURL(models.Image{}, 300))
}

// blankGrayPNG encodes a w x h all-black grayscale PNG row by row, so the test never holds the
// pixels in memory and the file stays tiny.
func blankGrayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(kind string, data []byte) {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
		out.Write(hdr[:])
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		out.WriteString(kind)
		out.Write(data)
		binary.BigEndian.PutUint32(hdr[:], crc.Sum32())
		out.Write(hdr[:])
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	chunk("IHDR", ihdr)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	row := make([]byte, w+1)
	for y := 0; y < h; y++ {
		_, err := zw.Write(row)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	chunk("IDAT", idat.Bytes())
	chunk("IEND", nil)
	return out.Bytes()
}

func TestThumbnailRejectsHugeDimensions(t *testing.T) {
	data := blankGrayPNG(t, 8000, 8000)
	require.Less(t, len(data), 1<<20)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8000, cfg.Width)

	_, err = Thumbnail(data, 300)
	assert.ErrorIs(t, err, ErrTooManyPixels)
}

func TestDataURLEmbedsHugeImagesWithoutDecoding(t *testing.T) {
	data := blankGrayPNG(t, 8000, 8000)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	url := DataURL(models.Image{ContentType: "image/png", Data: data}, 300)
	runtime.ReadMemStats(&after)

	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data), url)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestThumbnailWithinPixelBudget(t *testing.T) {
	data := blankGrayPNG(t, 1000, 500)

	url, err := Thumbnail(data, 300)
	require.NoError(t, err)
	img := decodeDataURL(t, url)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}
