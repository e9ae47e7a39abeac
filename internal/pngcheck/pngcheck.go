package pngcheck

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"SpriteForge/internal/domain"
)

// MinTransparencyRatio is the share of non-opaque pixels an image must exceed.
const MinTransparencyRatio = 0.1

// trailer is the IEND chunk type plus its CRC, the last 8 bytes of every PNG.
var trailer = []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82}

// IsStructurallyComplete reports whether b ends with the PNG end-of-stream marker.
func IsStructurallyComplete(b []byte) bool {
	if len(b) < len(trailer) {
		return false
	}
	return bytes.Equal(b[len(b)-len(trailer):], trailer)
}

// TransparencyRatio decodes b and returns the fraction of pixels with alpha below opaque.
func TransparencyRatio(b []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, fmt.Errorf("%w: empty image", domain.ErrDecode)
	}

	translucent := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				translucent++
			}
		}
	}

	return float64(translucent) / float64(total), nil
}

// SufficientRatio applies the strict greater-than threshold.
func SufficientRatio(ratio float64) bool {
	return ratio > MinTransparencyRatio
}

// HasSufficientTransparency reports whether more than 10% of pixels are not opaque.
func HasSufficientTransparency(b []byte) (bool, error) {
	ratio, err := TransparencyRatio(b)
	if err != nil {
		return false, err
	}
	return SufficientRatio(ratio), nil
}

// Stat reads the file at path and reports size and completeness without decoding.
func Stat(path string) (domain.ImageArtifact, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ImageArtifact{}, nil, fmt.Errorf("read artifact: %w", err)
	}
	return domain.ImageArtifact{
		LocalPath:              path,
		ByteSize:               int64(len(raw)),
		IsStructurallyComplete: IsStructurallyComplete(raw),
	}, raw, nil
}

// Inspect classifies the file at path. The ratio is only computed for complete files;
// a complete file that does not decode is returned together with an ErrDecode error.
func Inspect(path string) (domain.ImageArtifact, error) {
	artifact, raw, err := Stat(path)
	if err != nil {
		return artifact, err
	}
	if !artifact.IsStructurallyComplete {
		return artifact, nil
	}

	ratio, err := TransparencyRatio(raw)
	if err != nil {
		return artifact, err
	}
	artifact.TransparencyRatio = ratio
	return artifact, nil
}
