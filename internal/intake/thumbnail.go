package intake

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/zombor/trip-expenses/internal/scanning"
)

// ThumbnailSize is the longest edge of a generated thumbnail in pixels
const ThumbnailSize = 256

// makeThumbnail renders a JPEG thumbnail of a receipt. PDFs and HEIC photos are
// rasterised first so every supported upload gets a preview.
func makeThumbnail(data []byte, contentType string) ([]byte, error) {
	pngData, _, err := scanning.PrepareImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(pngData), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
