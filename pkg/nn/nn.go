// Package nn is a Neural Network interface layer
// To load a model, use the nnload package.
package nn

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

const DefaultProbabilityThreshold = 0.25
const DefaultImageSize = 640

// Tasks that a model can perform
const (
	TaskClassify = "classify"
	TaskDetect   = "detect"
)

// Classification is the probability that a whole image belongs to one class
type Classification struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"` // 0..1
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"` // 0..1
	Box        Box     `json:"box"`
}

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	ImageSize            int     // Inference size of the longest image edge, eg 640. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		ImageSize:            DefaultImageSize,
	}
}

// NN classification parameters
type ClassifyParams struct {
	ImageSize int // Zero value will use the default
}

// EncodedImage is a compressed image (eg the bytes of a JPEG file)
type EncodedImage struct {
	Data        []byte
	ContentType string // eg "image/jpeg"
}

// Classifier is given a whole image, and returns the probability of every class it knows
type Classifier interface {
	// Close releases any resources held by the model
	Close()

	// Classify returns class probabilities, in no particular order.
	// The result may be shorter than the number of classes in Config().
	Classify(ctx context.Context, img EncodedImage, params *ClassifyParams) ([]Classification, error)

	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the classifier has been created.
	Config() *ModelConfig
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close releases any resources held by the model
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// Box coordinates are in the pixel space of img.
	// You can create a default DetectionParams with NewDetectionParams()
	DetectObjects(ctx context.Context, img *image.RGBA, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Name         string   `json:"name"`                  // eg "yolo11n-cls"
	Architecture string   `json:"architecture"`          // eg "yolov8"
	Task         string   `json:"task"`                  // TaskClassify or TaskDetect
	Width        int      `json:"width"`                 // eg 640
	Height       int      `json:"height"`                // eg 640
	Classes      []string `json:"classes"`               // eg ["algal-spot", "brown-blight", ...]
	ClassesFile  string   `json:"classesFile,omitempty"` // Alternative to Classes. Relative to the config file.
	Endpoint     string   `json:"endpoint"`              // URL of the inference backend serving this model
}

// ClassName returns the label of a class index, or a synthetic name if the index is outside our label table
func (c *ModelConfig) ClassName(class int) string {
	if class >= 0 && class < len(c.Classes) {
		return c.Classes[class]
	}
	return fmt.Sprintf("class_%v", class)
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("Error parsing model config %v: %w", filename, err)
	}
	if len(config.Classes) == 0 && config.ClassesFile != "" {
		classesFile := config.ClassesFile
		if !filepath.IsAbs(classesFile) {
			classesFile = filepath.Join(filepath.Dir(filename), classesFile)
		}
		if config.Classes, err = LoadClassFile(classesFile); err != nil {
			return nil, err
		}
	}
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("Model config %v has no classes", filename)
	}
	if config.Name == "" {
		config.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
