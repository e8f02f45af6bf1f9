package pipeline

import (
	"github.com/leafscan/leafscan/pkg/diseases"
)

// Model names reported in results
const (
	ClassifierModelName = "YOLO Classifier"
	DetectorModelName   = "YOLOv8 Detection"
)

// Prediction is one ranked result.
// If the class is a known disease, then the disease fields are flattened into the JSON object.
type Prediction struct {
	ClassName  string    `json:"class_name"` // eg "red-rust"
	Confidence float32   `json:"confidence"` // Classification: 0..100. Detection: 0..1
	Box        []float32 `json:"box_coordinates,omitempty"`
	*diseases.Disease
}

// Enrich returns a copy of p with the knowledge base record of its class, if there is one
func Enrich(p Prediction) Prediction {
	p.Disease = diseases.Lookup(p.ClassName)
	return p
}

// ClassificationResult is the result of classifying an image
type ClassificationResult struct {
	Path        *string      `json:"path"` // nil if the classifier produced nothing, so there is no annotated image
	Predictions []Prediction `json:"predictions"`
	Model       string       `json:"model"`
}

// DetectionResult is the result of running object detection over a video
type DetectionResult struct {
	Path       *string        `json:"path"`
	Detections [][]Prediction `json:"detections"` // One entry per frame that had at least one detection
	Model      string         `json:"model"`
	Frames     int            `json:"frames"` // Total number of frames processed
	FPS        float64        `json:"fps"`
}
