// Package pipeline runs a model over an uploaded file, draws the results onto it,
// and saves the annotated copy into the predictions directory.
package pipeline

import (
	"context"
	"image"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/media"
	"github.com/leafscan/leafscan/pkg/nn"
	"github.com/leafscan/leafscan/pkg/videox"
)

// Maximum number of predictions returned for an image
const TopK = 3

// Names of the models, as reported when they are not loaded
const (
	ClassifierUnavailableName = "CNN"
	DetectorUnavailableName   = "YOLO detection"
)

// FrameSource produces the frames of a video, in order
type FrameSource interface {
	Info() videox.VideoInfo
	ReadFrame() (*image.RGBA, error) // Returns io.EOF after the last frame
	Close() error
}

// FrameSink consumes the frames of the intermediate video
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// Reencoder converts the intermediate video into the final video
type Reencoder interface {
	Reencode(ctx context.Context, srcFilename, dstFilename string, speedFactor float64) error
}

type OpenSourceFunc func(ctx context.Context, filename string) (FrameSource, error)
type CreateSinkFunc func(ctx context.Context, filename string, info videox.VideoInfo) (FrameSink, error)

// OnFrameFunc is called after every frame of a video has been processed.
// detections is empty for frames where nothing was found.
type OnFrameFunc func(frameIndex int, detections []Prediction)

// Pipeline holds the models and directories that are shared by all requests.
// After construction, a Pipeline is read-only, so it is safe to use from multiple goroutines.
type Pipeline struct {
	Log            logs.Log
	Classifier     nn.Classifier     // nil if the classifier failed to load
	Detector       nn.ObjectDetector // nil if the detector failed to load
	PredictionsDir string

	OpenSource OpenSourceFunc
	CreateSink CreateSinkFunc
	Encoder    Reencoder
	OnFrame    OnFrameFunc
}

// New creates a pipeline that decodes and encodes video with ffmpeg
func New(log logs.Log, classifier nn.Classifier, detector nn.ObjectDetector, predictionsDir string) *Pipeline {
	return &Pipeline{
		Log:            log,
		Classifier:     classifier,
		Detector:       detector,
		PredictionsDir: predictionsDir,
		OpenSource: func(ctx context.Context, filename string) (FrameSource, error) {
			return videox.OpenFrameReader(ctx, filename)
		},
		CreateSink: func(ctx context.Context, filename string, info videox.VideoInfo) (FrameSink, error) {
			return videox.CreateFrameWriter(ctx, filename, info)
		},
		Encoder: videox.Reencoder{},
	}
}

// Returns the stem of the uploaded file, eg "ba7816bf8f01cfea" for "/uploads/ba7816bf8f01cfea.jpg"
func fileStem(filename string) string {
	return media.Stem(filepath.Base(filename))
}

// ArtifactName returns the name of the annotated copy of an upload in the predictions directory,
// eg "ba7816bf8f01cfea_predicted.jpg". The name does not depend on the prediction parameters,
// so predicting again replaces the previous artifact.
func ArtifactName(uploadPath string, kind media.Kind) string {
	ext := ".jpg"
	if kind == media.KindVideo {
		ext = ".mp4"
	}
	return fileStem(uploadPath) + "_predicted" + ext
}

// AssetPath returns the URL path, relative to the server root, of a file in the predictions directory
func AssetPath(filename string) string {
	return "assets/" + filename
}
