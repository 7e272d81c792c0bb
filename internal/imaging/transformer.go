package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"
)

// Transformer re-encodes any decodable image as a JPEG at a fixed quality.
// The output is a pure function of the input bytes.
type Transformer struct {
	quality int
}

func NewTransformer(quality int) *Transformer {
	return &Transformer{quality: quality}
}

func (t *Transformer) Apply(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
