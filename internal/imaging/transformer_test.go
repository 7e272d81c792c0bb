package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagemill/backend/internal/imaging"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTransformer_ReencodesAsJPEG(t *testing.T) {
	tr := imaging.NewTransformer(50)

	out, err := tr.Apply(pngBytes(t))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestTransformer_LowerQualityShrinksOutput(t *testing.T) {
	in := pngBytes(t)

	low, err := imaging.NewTransformer(10).Apply(in)
	require.NoError(t, err)
	high, err := imaging.NewTransformer(95).Apply(in)
	require.NoError(t, err)

	assert.Less(t, len(low), len(high))
}

func TestTransformer_RejectsNonImage(t *testing.T) {
	_, err := imaging.NewTransformer(50).Apply([]byte("not an image"))
	assert.Error(t, err)
}
