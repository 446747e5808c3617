package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrDecode indicates the submitted bytes are not a well-formed image.
var ErrDecode = errors.New("malformed image")

// Decoded is a pixel buffer produced from a validated submission. It is
// owned by the inference engine during tensor construction and must not be
// retained after inference completes.
type Decoded struct {
	Pixels image.Image
	Width  int
	Height int
}

// Decode turns validated file bytes into a Decoded pixel buffer and a
// data-URL preview for the presentation collaborator. On failure neither
// artifact is produced.
func Decode(ctx context.Context, raw []byte) (*Decoded, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	decoded := &Decoded{
		Pixels: img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	preview := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(raw))
	return decoded, preview, nil
}
