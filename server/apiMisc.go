package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/leafscan/leafscan/pkg/nn"
	"github.com/leafscan/leafscan/pkg/pipeline"
	"github.com/leafscan/leafscan/server/historydb"
)

type rootResponse struct {
	Code      int    `json:"code"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

func (s *Server) httpRoot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, &rootResponse{
		Code:      http.StatusOK,
		Timestamp: time.Now().Unix(),
		Message:   "Image and Video Prediction REST API",
	})
}

type modelInfo struct {
	Model     string          `json:"model"` // eg "YOLO Classifier"
	Available bool            `json:"available"`
	Config    *nn.ModelConfig `json:"config,omitempty"`
}

func (s *Server) httpModels(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	classifier := modelInfo{Model: pipeline.ClassifierModelName}
	if s.models.Classifier != nil {
		classifier.Available = true
		classifier.Config = s.models.Classifier.Config()
	}
	detector := modelInfo{Model: pipeline.DetectorModelName}
	if s.models.Detector != nil {
		detector.Available = true
		detector.Config = s.models.Detector.Config()
	}
	www.SendJSON(w, []modelInfo{classifier, detector})
}

// httpHistory lists recent predict calls. If 'filename' is given, then only the calls for that file are listed.
func (s *Server) httpHistory(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.history == nil {
		www.PanicServerErrorf("History is disabled")
	}
	var entries []historydb.Entry
	var err error
	if filename := www.QueryValue(r, "filename"); filename != "" {
		entries, err = s.history.ForFile(filename)
	} else {
		entries, err = s.history.Recent(www.QueryInt(r, "limit"))
	}
	www.Check(err)
	www.SendJSON(w, entries)
}
