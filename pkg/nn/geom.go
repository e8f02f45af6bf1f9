package nn

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) TopLeft() Point {
	return Point{r.X, r.Y}
}

// Box is a detection box in floating point pixel coordinates, as produced by the model
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Clamp restricts the box to an image of the given size, and fixes inverted corners
func (b Box) Clamp(width, height int) Box {
	w := float32(width)
	h := float32(height)
	x1 := math32.Min(b.X1, b.X2)
	x2 := math32.Max(b.X1, b.X2)
	y1 := math32.Min(b.Y1, b.Y2)
	y2 := math32.Max(b.Y1, b.Y2)
	return Box{
		X1: math32.Max(0, math32.Min(x1, w)),
		Y1: math32.Max(0, math32.Min(y1, h)),
		X2: math32.Max(0, math32.Min(x2, w)),
		Y2: math32.Max(0, math32.Min(y2, h)),
	}
}

// Rect truncates the box to integer pixels, the same way OpenCV casts corners with int()
func (b Box) Rect() Rect {
	x1 := int(math32.Trunc(b.X1))
	y1 := int(math32.Trunc(b.Y1))
	x2 := int(math32.Trunc(b.X2))
	y2 := int(math32.Trunc(b.Y2))
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Coordinates returns [x1, y1, x2, y2]
func (b Box) Coordinates() []float32 {
	return []float32{b.X1, b.Y1, b.X2, b.Y2}
}
