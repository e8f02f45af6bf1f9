package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/imagex"
	"github.com/leafscan/leafscan/pkg/nn"
	"github.com/leafscan/leafscan/pkg/pipeline"
	"github.com/leafscan/leafscan/pkg/videox"
	"github.com/stretchr/testify/require"
)

var teaClasses = []string{"algal-spot", "brown-blight", "gray-blight", "healthy", "helopeltis", "red-rust"}

type fakeClassifier struct {
	config nn.ModelConfig
	empty  bool // Find nothing
}

func (f *fakeClassifier) Close()                  {}
func (f *fakeClassifier) Config() *nn.ModelConfig { return &f.config }
func (f *fakeClassifier) Classify(ctx context.Context, img nn.EncodedImage, params *nn.ClassifyParams) ([]nn.Classification, error) {
	if f.empty {
		return nil, nil
	}
	return []nn.Classification{
		{Class: 0, Confidence: 0.1},
		{Class: 1, Confidence: 0.05},
		{Class: 3, Confidence: 0.6},
		{Class: 5, Confidence: 0.2},
		{Class: 4, Confidence: 0.05},
	}, nil
}

// Finds one object on the second frame
type fakeDetector struct {
	config nn.ModelConfig
	calls  int
}

func (f *fakeDetector) Close()                  {}
func (f *fakeDetector) Config() *nn.ModelConfig { return &f.config }
func (f *fakeDetector) DetectObjects(ctx context.Context, img *image.RGBA, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	defer func() { f.calls++ }()
	if f.calls == 1 {
		return []nn.ObjectDetection{{Class: 5, Confidence: 0.5, Box: nn.Box{X1: 1, Y1: 2, X2: 20, Y2: 30}}}, nil
	}
	return nil, nil
}

type fakeSource struct {
	next int
}

func (f *fakeSource) Info() videox.VideoInfo {
	return videox.VideoInfo{Width: 32, Height: 32, FPS: 25}
}
func (f *fakeSource) ReadFrame() (*image.RGBA, error) {
	if f.next == 3 {
		return nil, io.EOF
	}
	f.next++
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), nil
}
func (f *fakeSource) Close() error { return nil }

type fakeSink struct{}

func (fakeSink) WriteFrame(img *image.RGBA) error { return nil }
func (fakeSink) Close() error                     { return nil }

type fakeEncoder struct {
	speed  float64
	ctxErr error // ctx.Err() at the time of the last call
}

func (f *fakeEncoder) Reencode(ctx context.Context, src, dst string, speedFactor float64) error {
	f.speed = speedFactor
	f.ctxErr = ctx.Err()
	return os.WriteFile(dst, []byte("mp4"), 0644)
}

func testModels() Models {
	return Models{
		Classifier: &fakeClassifier{config: nn.ModelConfig{Name: "cls", Task: nn.TaskClassify, Classes: teaClasses}},
		Detector:   &fakeDetector{config: nn.ModelConfig{Name: "det", Task: nn.TaskDetect, Classes: teaClasses}},
	}
}

func newTestServer(t *testing.T, models Models, modify func(cfg *Config)) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.PredictionsDir = filepath.Join(dir, "predictions")
	cfg.HistoryDB = filepath.Join(dir, "history.sqlite")
	if modify != nil {
		modify(cfg)
	}
	s, err := NewServer(logs.NewTestingLog(t), cfg, models)
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(s *Server, url string) *httptest.ResponseRecorder {
	return do(s, httptest.NewRequest("GET", url, nil))
}

func uploadRequest(t *testing.T, field, filename, contentType string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%v"; filename="%v"`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, s *Server, filename, contentType string, content []byte) string {
	t.Helper()
	rec := do(s, uploadRequest(t, "file", filename, contentType, content))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := uploadResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "File uploaded successfully", resp.Message)
	return resp.Filename
}

func redJPEG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+3] = 255
	}
	b, err := imagex.EncodeJPEG(img, imagex.DefaultQuality)
	require.NoError(t, err)
	return b
}

type classifyResponse struct {
	Filename string `json:"filename"`
	Results  struct {
		Path        *string          `json:"path"`
		Predictions []map[string]any `json:"predictions"`
		Model       string           `json:"model"`
	} `json:"results"`
}

func TestUploadAndClassify(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	content := redJPEG(t)
	filename := upload(t, s, "leaf.jpg", "image/jpeg", content)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}\.jpg$`), filename)
	_, err := os.Stat(filepath.Join(s.config.UploadDir, filename))
	require.NoError(t, err)

	// Same bytes and extension, different stem
	require.Equal(t, filename, upload(t, s, "other.JPG", "image/jpeg", content))

	rec := get(s, "/predict/"+filename)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := classifyResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, filename, resp.Filename)
	require.Equal(t, pipeline.ClassifierModelName, resp.Results.Model)
	require.Len(t, resp.Results.Predictions, 3)
	require.Equal(t, "healthy", resp.Results.Predictions[0]["class_name"])
	require.InDelta(t, 60, resp.Results.Predictions[0]["confidence"], 0.01)
	require.Equal(t, "red_rust", resp.Results.Predictions[1]["slug"])
	require.NotNil(t, resp.Results.Path)
	require.True(t, strings.HasPrefix(*resp.Results.Path, "assets/"))

	asset := get(s, "/"+*resp.Results.Path)
	require.Equal(t, http.StatusOK, asset.Code)
	require.NotZero(t, asset.Body.Len())

	// history
	rec = get(s, "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	history := []map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, filename, history[0]["filename"])
	require.Equal(t, "image", history[0]["kind"])
	require.Equal(t, "", history[0]["error"])
}

func TestUploadAndDetect(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	encoder := &fakeEncoder{}
	s.pipeline.OpenSource = func(ctx context.Context, filename string) (pipeline.FrameSource, error) {
		return &fakeSource{}, nil
	}
	s.pipeline.CreateSink = func(ctx context.Context, filename string, info videox.VideoInfo) (pipeline.FrameSink, error) {
		return fakeSink{}, nil
	}
	s.pipeline.Encoder = encoder

	filename := upload(t, s, "clip.mp4", "video/mp4", []byte("not really an mp4"))
	require.True(t, strings.HasSuffix(filename, ".mp4"))

	rec := get(s, "/predict/"+filename+"?conf=0.4&speed_factor=1.5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1.5, encoder.speed)
	resp := struct {
		Results pipeline.DetectionResult `json:"results"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, pipeline.DetectorModelName, resp.Results.Model)
	require.Equal(t, 3, resp.Results.Frames)
	require.Len(t, resp.Results.Detections, 1)
	require.Equal(t, "red-rust", resp.Results.Detections[0][0].ClassName)
	require.Equal(t, []float32{1, 2, 20, 30}, resp.Results.Detections[0][0].Box)
	require.Equal(t, "assets/"+strings.TrimSuffix(filename, ".mp4")+"_predicted.mp4", *resp.Results.Path)

	// The camelCase alias is accepted too
	rec = get(s, "/predict/"+filename+"?speedFactor=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 3.0, encoder.speed)
}

func TestPredictUnknownFile(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	rec := get(s, "/predict/0000000000000000.jpg")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "File not found", rec.Body.String())
}

func TestUploadRejectsMismatchedType(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	rec := do(s, uploadRequest(t, "file", "leaf.png", "video/mp4", redJPEG(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Unsupported file type. Received content-type: 'video/mp4'.", rec.Body.String())

	entries, err := os.ReadDir(s.config.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestUploadField(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	rec := do(s, uploadRequest(t, "image", "leaf.jpeg", "image/jpg", redJPEG(t)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(s, uploadRequest(t, "picture", "leaf.jpeg", "image/jpeg", redJPEG(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictBadRequests(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	for _, url := range []string{
		"/predict/abc.jpg?conf=2",
		"/predict/abc.jpg?conf=-0.1",
		"/predict/abc.jpg?conf=x",
		"/predict/abc.jpg?conf=NaN",
		"/predict/abc.jpg?conf=nan",
		"/predict/abc.jpg?conf=Inf",
		"/predict/abc.jpg?imgsz=0",
		"/predict/abc.jpg?imgsz=1.5",
		"/predict/abc.mp4?speed_factor=20",
		"/predict/abc.mp4?speed_factor=0.05",
		"/predict/abc.mp4?speed_factor=NaN",
		"/predict/abc.mp4?speed_factor=Inf",
		"/predict/abc.mp4?speedFactor=%2BInf",
		"/predict/abc.mp4?speedFactor=-inf",
		"/predict/..abc.jpg",
	} {
		rec := get(s, url)
		require.Equal(t, http.StatusBadRequest, rec.Code, url)
	}

	// A file that exists, but that we have no pipeline for
	require.NoError(t, os.WriteFile(filepath.Join(s.config.UploadDir, "abc.txt"), []byte("hi"), 0644))
	rec := get(s, "/predict/abc.txt")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Unsupported file type for prediction", rec.Body.String())
}

func TestModelUnavailable(t *testing.T) {
	s := newTestServer(t, Models{}, nil)
	filename := upload(t, s, "leaf.jpg", "image/jpeg", redJPEG(t))
	rec := get(s, "/predict/"+filename)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "CNN model is not available.", rec.Body.String())

	filename = upload(t, s, "clip.mp4", "video/mp4", []byte("video"))
	rec = get(s, "/predict/"+filename)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "YOLO detection model is not available.", rec.Body.String())

	// Failures are recorded too
	history := []map[string]any{}
	require.NoError(t, json.Unmarshal(get(s, "/history?limit=10").Body.Bytes(), &history))
	require.Len(t, history, 2)
	require.Equal(t, "YOLO detection model is not available.", history[0]["error"])
}

func TestRootAndModels(t *testing.T) {
	s := newTestServer(t, Models{Classifier: testModels().Classifier}, nil)
	rec := get(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	root := rootResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	require.Equal(t, 200, root.Code)
	require.Equal(t, "Image and Video Prediction REST API", root.Message)
	require.NotZero(t, root.Timestamp)

	rec = get(s, "/models")
	require.Equal(t, http.StatusOK, rec.Code)
	models := []modelInfo{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Len(t, models, 2)
	require.True(t, models[0].Available)
	require.Equal(t, teaClasses, models[0].Config.Classes)
	require.False(t, models[1].Available)
	require.Nil(t, models[1].Config)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	rec := get(s, "/")
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest("OPTIONS", "/upload", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = do(s, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, testModels(), func(cfg *Config) {
		cfg.RateLimit.PredictPerMinute = 1
	})
	require.Equal(t, http.StatusNotFound, get(s, "/predict/0000000000000000.jpg").Code)
	require.Equal(t, http.StatusTooManyRequests, get(s, "/predict/0000000000000000.jpg").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	upload(t, s, "leaf.jpg", "image/jpeg", redJPEG(t))
	rec := get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `leafscan_uploads_total{kind="image",status="success"} 1`)
	require.Contains(t, rec.Body.String(), `leafscan_model_loaded`)
}

func TestArchive(t *testing.T) {
	archiveDir := t.TempDir()
	s := newTestServer(t, testModels(), func(cfg *Config) {
		cfg.Archive.Filesystem = &StorageConfigFS{Root: archiveDir}
		cfg.Archive.Prefix = "predictions"
	})
	filename := upload(t, s, "leaf.jpg", "image/jpeg", redJPEG(t))
	require.Equal(t, http.StatusOK, get(s, "/predict/"+filename).Code)
	stem := strings.TrimSuffix(filename, ".jpg")
	archived := filepath.Join(archiveDir, "predictions", stem+"_predicted.jpg")
	require.FileExists(t, archived)

	// The next prediction finds nothing, so the archive must not keep serving the old result
	s.models.Classifier.(*fakeClassifier).empty = true
	rec := get(s, "/predict/"+filename)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := classifyResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Results.Path)
	require.NoFileExists(t, archived)

	// Nothing left to remove
	require.Equal(t, http.StatusOK, get(s, "/predict/"+filename).Code)
}

func TestPredictOutlivesClient(t *testing.T) {
	s := newTestServer(t, testModels(), nil)
	encoder := &fakeEncoder{}
	s.pipeline.OpenSource = func(ctx context.Context, filename string) (pipeline.FrameSource, error) {
		return &fakeSource{}, nil
	}
	s.pipeline.CreateSink = func(ctx context.Context, filename string, info videox.VideoInfo) (pipeline.FrameSink, error) {
		return fakeSink{}, nil
	}
	s.pipeline.Encoder = encoder
	filename := upload(t, s, "clip.mp4", "video/mp4", []byte("not really an mp4"))

	// The client has already hung up
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("GET", "/predict/"+filename, nil).WithContext(ctx)
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, encoder.ctxErr)
	require.FileExists(t, filepath.Join(s.config.PredictionsDir, strings.TrimSuffix(filename, ".mp4")+"_predicted.mp4"))
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, testModels(), func(cfg *Config) {
		cfg.HistoryDB = "-"
	})
	filename := upload(t, s, "leaf.jpg", "image/jpeg", redJPEG(t))
	require.Equal(t, http.StatusOK, get(s, "/predict/"+filename).Code)
	require.Equal(t, http.StatusInternalServerError, get(s, "/history").Code)
}
