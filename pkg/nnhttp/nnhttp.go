// Package nnhttp runs models on a remote inference backend.
//
// The backend accepts an encoded image as the POST body, and replies with JSON:
//
//	classify:  {"probs": [0.01, 0.93, ...]}                 one probability per class
//	detect:    {"boxes": [[x1, y1, x2, y2, conf, class], ...]}
package nnhttp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cyclopcam/www"
	"github.com/leafscan/leafscan/pkg/imagex"
	"github.com/leafscan/leafscan/pkg/nn"
)

// JPEG quality of video frames sent to the backend
const frameQuality = 95

type classifyResponse struct {
	Probs []float32 `json:"probs"`
}

type detectResponse struct {
	Boxes [][]float32 `json:"boxes"`
}

type model struct {
	config *nn.ModelConfig
}

func (m *model) Config() *nn.ModelConfig {
	return m.config
}

// The backend owns the weights, so we have nothing to release
func (m *model) Close() {
}

func (m *model) post(ctx context.Context, query url.Values, body []byte, contentType string, response any) error {
	u, err := url.Parse(m.config.Endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if err := www.FetchJSON(req, response); err != nil {
		return fmt.Errorf("Inference backend for %v failed: %w", m.config.Name, err)
	}
	return nil
}

// Classifier is an nn.Classifier on a remote backend
type Classifier struct {
	model
}

func NewClassifier(config *nn.ModelConfig) *Classifier {
	return &Classifier{model{config: config}}
}

func (c *Classifier) Classify(ctx context.Context, img nn.EncodedImage, params *nn.ClassifyParams) ([]nn.Classification, error) {
	query := url.Values{}
	if params != nil && params.ImageSize > 0 {
		query.Set("imgsz", strconv.Itoa(params.ImageSize))
	}
	resp := classifyResponse{}
	if err := c.post(ctx, query, img.Data, img.ContentType, &resp); err != nil {
		return nil, err
	}
	result := make([]nn.Classification, 0, len(resp.Probs))
	for i, p := range resp.Probs {
		result = append(result, nn.Classification{Class: i, Confidence: p})
	}
	return result, nil
}

// Detector is an nn.ObjectDetector on a remote backend
type Detector struct {
	model
}

func NewDetector(config *nn.ModelConfig) *Detector {
	return &Detector{model{config: config}}
}

func (d *Detector) DetectObjects(ctx context.Context, img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	jpg, err := imagex.EncodeJPEG(img, frameQuality)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("conf", strconv.FormatFloat(float64(params.ProbabilityThreshold), 'f', -1, 32))
	if params.ImageSize > 0 {
		query.Set("imgsz", strconv.Itoa(params.ImageSize))
	}
	resp := detectResponse{}
	if err := d.post(ctx, query, jpg, "image/jpeg", &resp); err != nil {
		return nil, err
	}
	result := make([]nn.ObjectDetection, 0, len(resp.Boxes))
	for i, b := range resp.Boxes {
		if len(b) != 6 {
			return nil, fmt.Errorf("Inference backend for %v returned box %v with %v values instead of 6", d.config.Name, i, len(b))
		}
		result = append(result, nn.ObjectDetection{
			Box:        nn.Box{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]},
			Confidence: b[4],
			Class:      int(b[5]),
		})
	}
	return result, nil
}
