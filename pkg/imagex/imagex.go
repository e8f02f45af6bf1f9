package imagex

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// Default JPEG quality for images that we produce
const DefaultQuality = 90

// Load an image file into an RGBA buffer.
// JPEG is decoded by libjpeg-turbo. Other formats (eg PNG) go through the Go image decoders.
func Load(filename string) (*image.RGBA, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(raw, filename)
}

// Decode raw file content. The name is only used to decide on the decoder.
func Decode(raw []byte, filename string) (*image.RGBA, error) {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		img, err := cimg.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("Failed to decode JPEG %v: %w", filename, err)
		}
		return FromCImage(img), nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("Failed to decode image %v: %w", filename, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Rect, img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// FromCImage converts a decompressed image into an RGBA buffer
func FromCImage(img *cimg.Image) *image.RGBA {
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+img.Width*4]
		for x := 0; x < img.Width; x++ {
			out[x*4] = src[x*3]
			out[x*4+1] = src[x*3+1]
			out[x*4+2] = src[x*3+2]
			out[x*4+3] = 255
		}
	}
	return dst
}

// ToCImageRGB drops the alpha channel, producing an image that libjpeg-turbo can compress
func ToCImageRGB(src *image.RGBA) *cimg.Image {
	width := src.Rect.Dx()
	height := src.Rect.Dy()
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		in := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		out := dst.Pixels[y*dst.Stride:]
		for x := 0; x < width; x++ {
			out[x*3] = in[x*4]
			out[x*3+1] = in[x*4+1]
			out[x*3+2] = in[x*4+2]
		}
	}
	return dst
}

// EncodeJPEG compresses img with 4:2:0 chroma subsampling
func EncodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	return cimg.Compress(ToCImageRGB(img), cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}

// SaveJPEG writes img to filename as a JPEG
func SaveJPEG(filename string, img *image.RGBA, quality int) error {
	b, err := EncodeJPEG(img, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}
