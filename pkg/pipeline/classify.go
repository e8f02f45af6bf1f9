package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/leafscan/leafscan/pkg/annotate"
	"github.com/leafscan/leafscan/pkg/imagex"
	"github.com/leafscan/leafscan/pkg/media"
	"github.com/leafscan/leafscan/pkg/nn"
)

func contentType(filename string) string {
	if media.Extension(filename) == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Classify runs the classifier over the image at imagePath, and returns the top predictions.
// If there is at least one prediction, then the top one is drawn onto a copy of the image,
// which is saved as {stem}_predicted.jpg in the predictions directory.
func (p *Pipeline) Classify(ctx context.Context, imagePath string, imageSize int) (*ClassificationResult, error) {
	if p.Classifier == nil {
		return nil, &ModelUnavailableError{Model: ClassifierUnavailableName}
	}
	if imageSize <= 0 {
		imageSize = nn.DefaultImageSize
	}
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}

	p.Log.Infof("Running classification on %v, imgsz=%v", imagePath, imageSize)
	classes, err := p.Classifier.Classify(ctx, nn.EncodedImage{Data: raw, ContentType: contentType(imagePath)}, &nn.ClassifyParams{ImageSize: imageSize})
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].Confidence > classes[j].Confidence
	})
	if len(classes) > TopK {
		classes = classes[:TopK]
	}

	config := p.Classifier.Config()
	result := &ClassificationResult{
		Predictions: make([]Prediction, 0, len(classes)),
		Model:       ClassifierModelName,
	}
	for _, c := range classes {
		result.Predictions = append(result.Predictions, Enrich(Prediction{
			ClassName:  config.ClassName(c.Class),
			Confidence: c.Confidence * 100,
		}))
	}
	if len(result.Predictions) == 0 {
		return result, nil
	}

	img, err := imagex.Load(imagePath)
	if err != nil {
		return nil, err
	}
	top := result.Predictions[0]
	annotate.DrawImageLabel(img, fmt.Sprintf("%s: %.2f", top.ClassName, top.Confidence))

	outName := ArtifactName(imagePath, media.KindImage)
	if err := imagex.SaveJPEG(filepath.Join(p.PredictionsDir, outName), img, imagex.DefaultQuality); err != nil {
		return nil, fmt.Errorf("Failed to save annotated image: %w", err)
	}
	p.Log.Infof("Saved labeled image to %v", outName)
	path := AssetPath(outName)
	result.Path = &path
	return result, nil
}
