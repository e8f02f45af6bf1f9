package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/leafscan/leafscan/pkg/metrics"
	"github.com/leafscan/leafscan/pkg/nn"
	"github.com/leafscan/leafscan/pkg/nnload"
	"github.com/leafscan/leafscan/pkg/pipeline"
	"github.com/leafscan/leafscan/pkg/storage"
	"github.com/leafscan/leafscan/server/historydb"
)

// Models are created once at startup, and shared by all requests.
// A nil model failed to load, and every predict call that needs it fails.
type Models struct {
	Classifier nn.Classifier
	Detector   nn.ObjectDetector
}

func (m *Models) Close() {
	if m.Classifier != nil {
		m.Classifier.Close()
	}
	if m.Detector != nil {
		m.Detector.Close()
	}
}

// LoadModels loads both models. A model that fails to load is logged and left nil,
// so that the service can still run with the other one.
func LoadModels(log logs.Log, cfg *Config) Models {
	models := Models{}
	if classifier, err := nnload.LoadClassifier(log, cfg.modelSource(cfg.Classifier, nn.TaskClassify)); err != nil {
		log.Warnf("Error loading classification model: %v", err)
	} else {
		models.Classifier = classifier
	}
	if detector, err := nnload.LoadDetector(log, cfg.modelSource(cfg.Detector, nn.TaskDetect)); err != nil {
		log.Warnf("Error loading detection model: %v", err)
	} else {
		models.Detector = detector
	}
	return models
}

type Server struct {
	Log              logs.Log
	ShutdownComplete chan error // Sent when Shutdown() has finished

	config     *Config
	models     Models
	pipeline   *pipeline.Pipeline
	history    *historydb.HistoryDB // nil if history is disabled
	archive    *storage.Archive     // nil if no archive is configured
	gcs        *storage.StorageGCS  // Closed on shutdown, if the archive is in GCS
	metrics    *metrics.Metrics
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
}

// NewServer creates the directories, opens the history DB and the archive, and sets up the HTTP routes.
// The server takes ownership of models.
func NewServer(log logs.Log, cfg *Config, models Models) (*Server, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.PredictionsDir} {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return nil, fmt.Errorf("Failed to create directory %v: %w", dir, err)
		}
	}

	m, err := metrics.NewMetrics()
	if err != nil {
		return nil, err
	}
	m.SetModelLoaded(pipeline.ClassifierModelName, models.Classifier != nil)
	m.SetModelLoaded(pipeline.DetectorModelName, models.Detector != nil)

	s := &Server{
		Log:              log,
		ShutdownComplete: make(chan error, 1),
		config:           cfg,
		models:           models,
		metrics:          m,
		pipeline:         pipeline.New(log, models.Classifier, models.Detector, cfg.PredictionsDir),
	}

	if cfg.HistoryDB != "" && cfg.HistoryDB != "-" {
		if s.history, err = historydb.NewHistoryDB(log, cfg.HistoryDB); err != nil {
			return nil, err
		}
	}

	if err := s.openArchive(); err != nil {
		s.close()
		return nil, err
	}

	if err := s.setupHttpRoutes(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) openArchive() error {
	var store storage.Storage
	var err error
	if s.config.Archive.GCS != nil {
		// Google Cloud Storage
		s.gcs, err = storage.NewStorageGCS(context.Background(), s.Log, s.config.Archive.GCS.Bucket, s.config.Archive.GCS.Public)
		if err != nil {
			return err
		}
		store = s.gcs
	} else if s.config.Archive.Filesystem != nil {
		// Filesystem
		store, err = storage.NewStorageFS(s.Log, s.config.Archive.Filesystem.Root)
		if err != nil {
			return err
		}
	} else {
		return nil
	}
	s.archive = storage.NewArchive(s.Log, store, s.config.Archive.Prefix)
	return nil
}

// Handler returns the root HTTP handler, which is useful for tests
func (s *Server) Handler() http.Handler {
	return withCORS(s.httpRouter)
}

// addr example: "0.0.0.0:8000"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// ListenHTTPS serves on port 443, with certificates from Let's Encrypt.
func (s *Server) ListenHTTPS(https *HTTPSConfig) error {
	if https.CertDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: https.CertDir}
	}
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = https.Email
	tlsConfig, err := certmagic.TLS(https.Domains)
	if err != nil {
		return fmt.Errorf("Failed to create TLS config for %v: %w", https.Domains, err)
	}
	tlsConfig.MinVersion = tls.VersionTLS12

	s.Log.Infof("Listening on :443 for %v", https.Domains)
	s.httpServer = &http.Server{
		Addr:      ":443",
		Handler:   s.Handler(),
		TLSConfig: tlsConfig,
	}
	return s.httpServer.ListenAndServeTLS("", "")
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP server, waiting up to 2 seconds for requests to finish,
// and then releases the models and the databases.
func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	s.close()
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}

func (s *Server) close() {
	s.models.Close()
	if s.history != nil {
		s.history.Close()
		s.history = nil
	}
	if s.gcs != nil {
		if err := s.gcs.Close(); err != nil {
			s.Log.Warnf("Error closing GCS client: %v", err)
		}
		s.gcs = nil
	}
}
