package annotate

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/leafscan/leafscan/pkg/nn"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Pixel height of text at a font scale of 1.0. This approximates the size of
// OpenCV's Hershey Simplex font, which our clients are used to.
const scaleToPixels = 30

var (
	White = color.RGBA{255, 255, 255, 255}
	Red   = color.RGBA{255, 0, 0, 255}
	Green = color.RGBA{0, 255, 0, 255}
)

// Style controls the appearance of a label
type Style struct {
	FontScale  float64
	Thickness  float64 // Line width of detection boxes
	Padding    int     // Extra background around the text
	Text       color.Color
	Background color.Color
}

// ImageStyle is used for the single label on a classified image
var ImageStyle = Style{
	FontScale:  0.8,
	Thickness:  2,
	Padding:    5,
	Text:       White,
	Background: Red,
}

// DetectionStyle is used for the boxes and tags on video frames
var DetectionStyle = Style{
	FontScale:  1.0,
	Thickness:  2,
	Padding:    0,
	Text:       White,
	Background: Green,
}

// Text origin (left, baseline) of the label on a classified image
var ImageLabelOrigin = image.Point{X: 10, Y: 30}

var regularFont *truetype.Font

func init() {
	var err error
	regularFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Faces hold a glyph cache, so they are not safe to share between goroutines.
func newFace(scale float64) font.Face {
	return truetype.NewFace(regularFont, &truetype.Options{
		Size:    scale * scaleToPixels,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// TextMetrics is the size of a rendered string
type TextMetrics struct {
	Width    int // Advance width
	Height   int // Ascent above the baseline
	Baseline int // Descent below the baseline
}

// MeasureText returns the size of label when drawn at the given font scale
func MeasureText(label string, scale float64) TextMetrics {
	face := newFace(scale)
	defer face.Close()
	return measure(face, label)
}

func measure(face font.Face, label string) TextMetrics {
	m := face.Metrics()
	return TextMetrics{
		Width:    font.MeasureString(face, label).Ceil(),
		Height:   m.Ascent.Ceil(),
		Baseline: m.Descent.Ceil(),
	}
}

func fillRect(dc *gg.Context, x1, y1, x2, y2 int, c color.Color) {
	if x2 <= x1 || y2 <= y1 {
		return
	}
	dc.SetColor(c)
	dc.DrawRectangle(float64(x1), float64(y1), float64(x2-x1), float64(y2-y1))
	dc.Fill()
}

// DrawImageLabel draws label at the top left of img, on a solid background.
// An empty label draws nothing.
func DrawImageLabel(img *image.RGBA, label string) {
	if label == "" {
		return
	}
	style := ImageStyle
	face := newFace(style.FontScale)
	defer face.Close()
	tm := measure(face, label)
	org := ImageLabelOrigin

	dc := gg.NewContextForRGBA(img)
	dc.SetFontFace(face)
	fillRect(dc, org.X-style.Padding, org.Y-tm.Height-style.Padding, org.X+tm.Width+style.Padding, org.Y+tm.Baseline, style.Background)
	dc.SetColor(style.Text)
	dc.DrawString(label, float64(org.X), float64(org.Y))
}

// DrawDetection outlines box on img, and draws a filled tag containing label just above
// the top left corner of the box. An empty label draws only the box.
func DrawDetection(img *image.RGBA, box nn.Box, label string) {
	style := DetectionStyle
	r := box.Clamp(img.Rect.Dx(), img.Rect.Dy()).Rect()

	dc := gg.NewContextForRGBA(img)
	dc.SetColor(style.Background)
	dc.SetLineWidth(style.Thickness)
	dc.DrawRectangle(float64(r.X), float64(r.Y), float64(r.Width), float64(r.Height))
	dc.Stroke()

	if label == "" {
		return
	}
	face := newFace(style.FontScale)
	defer face.Close()
	tm := measure(face, label)
	tl := r.TopLeft()
	dc.SetFontFace(face)
	fillRect(dc, tl.X, tl.Y-tm.Height-tm.Baseline, tl.X+tm.Width, tl.Y, style.Background)
	dc.SetColor(style.Text)
	dc.DrawString(label, float64(tl.X), float64(tl.Y-tm.Baseline))
}
