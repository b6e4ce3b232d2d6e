// Package imagefit normalizes generated images to the fixed square
// publishing aspect before captioning and upload.
package imagefit

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Side is the pixel dimension of the publishing square.
const Side = 1080

// FitSquare scales src to fit inside the publishing square and composites it
// over a blurred, stretched copy of itself so the padding never reads as
// letterboxing. Already-square input is only resized.
func FitSquare(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == h {
		return imaging.Resize(src, Side, Side, imaging.Lanczos)
	}

	background := imaging.Fill(src, Side, Side, imaging.Center, imaging.Lanczos)
	background = imaging.Blur(background, 18)

	foreground := imaging.Fit(src, Side, Side, imaging.Lanczos)
	fg := foreground.Bounds()
	offset := image.Pt((Side-fg.Dx())/2, (Side-fg.Dy())/2)
	return imaging.Paste(background, foreground, offset)
}

// NormalizeFile rewrites the image at path as a publishing-square JPEG at
// outPath.
func NormalizeFile(path, outPath string) error {
	src, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("imagefit: open %s: %w", path, err)
	}
	normalized := FitSquare(src)
	if err := imaging.Save(normalized, outPath, imaging.JPEGQuality(92)); err != nil {
		return fmt.Errorf("imagefit: save %s: %w", outPath, err)
	}
	return nil
}
