package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/errors"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestScaledSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"landscape", 2048, 1536, 512, 512, 384},
		{"portrait", 1000, 2000, 512, 256, 512},
		{"square", 4000, 4000, 512, 512, 512},
		{"exact bound", 512, 300, 512, 512, 300},
		{"small is not upscaled", 100, 50, 512, 100, 50},
		{"extreme aspect keeps one pixel", 10000, 3, 512, 512, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, h := ScaledSize(tt.w, tt.h, tt.maxDim)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestEncoder_DownscalesLargeImage(t *testing.T) {
	t.Parallel()

	payload, err := (&Encoder{}).EncodeBytes(makePNG(t, 1024, 768))
	require.NoError(t, err)

	assert.Equal(t, 512, payload.Width)
	assert.Equal(t, 384, payload.Height)
	assert.Equal(t, "png", payload.Format)
	assert.Equal(t, len(payload.JPEG), payload.Size())

	decoded, err := base64.StdEncoding.DecodeString(payload.Base64)
	require.NoError(t, err)
	assert.Equal(t, payload.JPEG, decoded)

	img, err := jpeg.Decode(bytes.NewReader(decoded))
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 384, img.Bounds().Dy())
}

func TestEncoder_NeverUpscales(t *testing.T) {
	t.Parallel()

	payload, err := NewEncoder(512, 75, 0).EncodeBytes(makePNG(t, 64, 32))
	require.NoError(t, err)

	assert.Equal(t, 64, payload.Width)
	assert.Equal(t, 32, payload.Height)
}

func TestEncoder_CustomMaxDimension(t *testing.T) {
	t.Parallel()

	payload, err := NewEncoder(100, 90, 0).EncodeBytes(makePNG(t, 300, 150))
	require.NoError(t, err)

	assert.Equal(t, 100, payload.Width)
	assert.Equal(t, 50, payload.Height)
}

func TestEncoder_ReencodesJPEG(t *testing.T) {
	t.Parallel()

	var src bytes.Buffer
	require.NoError(t, jpeg.Encode(&src, image.NewGray(image.Rect(0, 0, 600, 600)), nil))

	payload, err := (&Encoder{}).EncodeBytes(src.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", payload.Format)
	assert.Equal(t, 512, payload.Width)
	assert.True(t, len(payload.DataURI()) > len("data:image/jpeg;base64,"))
	assert.Contains(t, payload.DataURI(), "data:image/jpeg;base64,")
}

func TestEncoder_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an image", []byte("definitely not a photo")},
		{"truncated png", makePNG(t, 10, 10)[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload, err := (&Encoder{}).EncodeBytes(tt.data)
			require.Error(t, err)
			assert.Nil(t, payload)
			assert.True(t, errors.IsCategory(err, errors.CategoryImageEncode))
		})
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w×h grayscale image with no
// pixel data; enough for image.DecodeConfig.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 0, 17)
	ihdr = append(ihdr, "IHDR"...)
	ihdr = binary.BigEndian.AppendUint32(ihdr, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 0, 0, 0, 0) // 8-bit gray, deflate, no filter, no interlace

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
}

func TestEncoder_RejectsOversizedImageBeforeDecode(t *testing.T) {
	t.Parallel()

	// 16000×16000 would need ~1GB of RGBA; only the header exists, so a full decode
	// would fail on missing IDAT rather than on the budget.
	payload, err := (&Encoder{}).EncodeBytes(pngHeader(16000, 16000))
	require.Error(t, err)
	assert.Nil(t, payload)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageEncode))
	assert.Contains(t, err.Error(), "exceeds 40000000 pixel budget")
}

func TestEncoder_CustomPixelBudget(t *testing.T) {
	t.Parallel()

	enc := NewEncoder(512, 75, 10_000)

	_, err := enc.EncodeBytes(makePNG(t, 200, 200))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageEncode))
	assert.Contains(t, err.Error(), "200x200")

	payload, err := enc.EncodeBytes(makePNG(t, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, 100, payload.Width)
}

func TestEncoder_EncodeFromReader(t *testing.T) {
	t.Parallel()

	payload, err := (&Encoder{}).Encode(bytes.NewReader(makePNG(t, 40, 20)))
	require.NoError(t, err)
	assert.Equal(t, "png", payload.Format)
	assert.Equal(t, 40, payload.Width)
}
