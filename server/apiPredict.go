package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/leafscan/leafscan/pkg/media"
	"github.com/leafscan/leafscan/pkg/pipeline"
	"github.com/leafscan/leafscan/server/historydb"
)

type predictResponse struct {
	Filename string `json:"filename"`
	Results  any    `json:"results"` // *pipeline.ClassificationResult or *pipeline.DetectionResult
}

// finiteInRange is false for NaN and infinities, which ParseFloat accepts
func finiteInRange(f, lo, hi float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= lo && f <= hi
}

// parsePredictParams reads conf, imgsz and speed_factor, and panics with a 400 if any of them are out of range
func parsePredictParams(r *http.Request) pipeline.DetectParams {
	p := pipeline.NewDetectParams()
	if v, ok := www.QueryValueEx(r, "conf"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || !finiteInRange(f, 0, 1) {
			www.PanicBadRequestf("conf must be a number between 0 and 1")
		}
		p.Conf = float32(f)
	}
	if v, ok := www.QueryValueEx(r, "imgsz"); ok {
		i, err := strconv.Atoi(v)
		if err != nil || i <= 0 {
			www.PanicBadRequestf("imgsz must be a positive integer")
		}
		p.ImageSize = i
	}
	speed, ok := www.QueryValueEx(r, "speed_factor")
	if !ok {
		speed, ok = www.QueryValueEx(r, "speedFactor")
	}
	if ok {
		f, err := strconv.ParseFloat(speed, 64)
		if err != nil || !finiteInRange(f, pipeline.MinSpeedFactor, pipeline.MaxSpeedFactor) {
			www.PanicBadRequestf("speed_factor must be a number between %v and %v", pipeline.MinSpeedFactor, pipeline.MaxSpeedFactor)
		}
		p.SpeedFactor = f
	}
	return p
}

// validUploadName rejects anything that could escape the upload directory
func validUploadName(filename string) bool {
	return filename != "" && filename != "." && !strings.ContainsAny(filename, `/\`) && !strings.Contains(filename, "..")
}

func (s *Server) httpPredict(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	filename := params.ByName("filename")
	if !validUploadName(filename) {
		www.PanicBadRequestf("Invalid filename")
	}
	predictParams := parsePredictParams(r)

	uploadPath := filepath.Join(s.config.UploadDir, filename)
	if _, err := os.Stat(uploadPath); err != nil {
		www.Panic(http.StatusNotFound, "File not found")
	}

	kind := media.KindForExtension(media.Extension(filename))
	if kind == media.KindUnknown {
		www.PanicBadRequestf("Unsupported file type for prediction")
	}

	entry := &historydb.Entry{
		Filename: filename,
		Kind:     kind.String(),
		Params:   &dbh.JSONField[historydb.Params]{},
	}

	// A client that hangs up does not abort the prediction. ffmpeg runs to completion,
	// and the artifact and history entry are still written.
	ctx := context.WithoutCancel(r.Context())

	start := time.Now()
	var results any
	var artifact *string
	var err error
	switch kind {
	case media.KindImage:
		entry.Params.Data = historydb.Params{ImageSize: predictParams.ImageSize}
		var res *pipeline.ClassificationResult
		if res, err = s.pipeline.Classify(ctx, uploadPath, predictParams.ImageSize); err == nil {
			results = res
			artifact = res.Path
			entry.Model = res.Model
			entry.NumResults = len(res.Predictions)
			for _, p := range res.Predictions {
				s.metrics.RecordClass(kind.String(), p.ClassName)
			}
		}
	case media.KindVideo:
		entry.Params.Data = historydb.Params{Conf: predictParams.Conf, ImageSize: predictParams.ImageSize, SpeedFactor: predictParams.SpeedFactor}
		var res *pipeline.DetectionResult
		if res, err = s.pipeline.Detect(ctx, uploadPath, predictParams); err == nil {
			results = res
			artifact = res.Path
			entry.Model = res.Model
			entry.NumResults = len(res.Detections)
			s.metrics.AddVideoFrames(res.Frames)
			for _, frame := range res.Detections {
				for _, p := range frame {
					s.metrics.RecordClass(kind.String(), p.ClassName)
				}
			}
		}
	}
	duration := time.Since(start)
	s.metrics.RecordPrediction(kind.String(), duration, err)
	entry.DurationMS = duration.Milliseconds()

	if err != nil {
		entry.Error = err.Error()
		s.recordHistory(entry)
		s.Log.Errorf("Prediction on %v failed: %v", filename, err)
		if errors.Is(err, pipeline.ErrModelUnavailable) {
			www.PanicServerErrorf("%v", err.Error())
		}
		www.PanicServerErrorf("An error occurred during prediction: %v", err)
	}

	if artifact != nil {
		entry.Path = *artifact
		entry.ArchiveURL = s.archiveArtifact(ctx, *artifact)
	} else {
		s.removeArchivedArtifact(ctx, pipeline.ArtifactName(uploadPath, kind))
	}
	s.recordHistory(entry)

	www.SendJSON(w, &predictResponse{
		Filename: filename,
		Results:  results,
	})
}

// archiveArtifact copies an annotated artifact into the archive, if we have one.
// Archive failures are logged, but they don't fail the request.
func (s *Server) archiveArtifact(ctx context.Context, assetPath string) string {
	if s.archive == nil {
		return ""
	}
	localFile := filepath.Join(s.config.PredictionsDir, filepath.Base(assetPath))
	url, err := s.archive.Put(ctx, localFile)
	if err != nil {
		s.Log.Warnf("Failed to archive %v: %v", localFile, err)
		return ""
	}
	return url
}

// removeArchivedArtifact deletes the archived result of an earlier prediction on the same
// upload, when the latest prediction produced no artifact.
func (s *Server) removeArchivedArtifact(ctx context.Context, artifactName string) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Remove(ctx, artifactName); err != nil {
		s.Log.Warnf("Failed to remove stale archive object for %v: %v", artifactName, err)
	}
}

func (s *Server) recordHistory(e *historydb.Entry) {
	if s.history == nil {
		return
	}
	// Add logs its own errors
	s.history.Add(e)
}
