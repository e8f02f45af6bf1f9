package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/leafscan/leafscan/pkg/annotate"
	"github.com/leafscan/leafscan/pkg/media"
	"github.com/leafscan/leafscan/pkg/nn"
)

// Playback speed factor bounds. Greater than 1 is slower.
const (
	DefaultSpeedFactor = 2.0
	MinSpeedFactor     = 0.1
	MaxSpeedFactor     = 10.0
)

// DetectParams control object detection on a video
type DetectParams struct {
	Conf        float32 // Confidence threshold, 0..1
	ImageSize   int     // Inference size
	SpeedFactor float64 // Scales presentation timestamps of the final video
}

// NewDetectParams returns the default parameters
func NewDetectParams() DetectParams {
	return DetectParams{
		Conf:        nn.DefaultProbabilityThreshold,
		ImageSize:   nn.DefaultImageSize,
		SpeedFactor: DefaultSpeedFactor,
	}
}

// Detect runs the object detector over every frame of the video at videoPath.
// Every frame is annotated and written to {stem}_temp.mp4, which is then re-encoded
// into {stem}_predicted.mp4. The temporary file is gone when Detect returns, whether
// or not it succeeded.
func (p *Pipeline) Detect(ctx context.Context, videoPath string, params DetectParams) (*DetectionResult, error) {
	if p.Detector == nil {
		return nil, &ModelUnavailableError{Model: DetectorUnavailableName}
	}
	if params.ImageSize <= 0 {
		params.ImageSize = nn.DefaultImageSize
	}
	if params.SpeedFactor <= 0 {
		params.SpeedFactor = DefaultSpeedFactor
	}
	p.Log.Infof("Running detection on %v with conf=%v, imgsz=%v, speed_factor=%v", videoPath, params.Conf, params.ImageSize, params.SpeedFactor)

	src, err := p.OpenSource(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("Could not open video file: %w", err)
	}
	srcOpen := true
	defer func() {
		if srcOpen {
			src.Close()
		}
	}()

	info := src.Info()
	if math.Round(info.FPS) == 0 {
		return nil, fmt.Errorf("Video %v has frame rate %v: %w", filepath.Base(videoPath), info.FPS, ErrInvalidFrameRate)
	}

	stem := fileStem(videoPath)
	tempPath := filepath.Join(p.PredictionsDir, stem+"_temp.mp4")
	finalName := ArtifactName(videoPath, media.KindVideo)
	finalPath := filepath.Join(p.PredictionsDir, finalName)
	defer os.Remove(tempPath)

	sink, err := p.CreateSink(ctx, tempPath, info)
	if err != nil {
		return nil, fmt.Errorf("Could not initialize temporary video writer: %w", err)
	}
	sinkOpen := true
	defer func() {
		if sinkOpen {
			sink.Close()
		}
	}()

	config := p.Detector.Config()
	nnParams := &nn.DetectionParams{
		ProbabilityThreshold: params.Conf,
		ImageSize:            params.ImageSize,
	}
	result := &DetectionResult{
		Detections: [][]Prediction{},
		Model:      DetectorModelName,
		FPS:        info.FPS,
	}

	for frameIndex := 0; ; frameIndex++ {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("Failed to read frame %v: %w", frameIndex, err)
		}
		objects, err := p.Detector.DetectObjects(ctx, frame, nnParams)
		if err != nil {
			return nil, &InferenceError{Err: err}
		}
		detections := make([]Prediction, 0, len(objects))
		for _, obj := range objects {
			className := config.ClassName(obj.Class)
			detections = append(detections, Enrich(Prediction{
				ClassName:  className,
				Confidence: obj.Confidence,
				Box:        obj.Box.Coordinates(),
			}))
			annotate.DrawDetection(frame, obj.Box, fmt.Sprintf("%s: %.2f", className, obj.Confidence))
		}
		if len(detections) != 0 {
			result.Detections = append(result.Detections, detections)
		}
		if p.OnFrame != nil {
			p.OnFrame(frameIndex, detections)
		}
		if err := sink.WriteFrame(frame); err != nil {
			return nil, err
		}
		result.Frames++
	}

	srcOpen = false
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("Failed to decode video: %w", err)
	}
	sinkOpen = false
	if err := sink.Close(); err != nil {
		return nil, fmt.Errorf("Failed to write temporary video: %w", err)
	}
	p.Log.Infof("Temporary video with %v frames saved to %v", result.Frames, tempPath)

	if err := p.Encoder.Reencode(ctx, tempPath, finalPath, params.SpeedFactor); err != nil {
		p.Log.Errorf("Re-encoding %v failed: %v", tempPath, err)
		return nil, err
	}
	p.Log.Infof("Saved labeled video to %v", finalName)
	path := AssetPath(finalName)
	result.Path = &path
	return result, nil
}
