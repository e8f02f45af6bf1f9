package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/leafscan/leafscan/pkg/nnload"
)

// Config is loaded from a JSON file. Any field that is omitted gets its default value.
type Config struct {
	Host           string            `json:"host"`           // Listen address, eg "0.0.0.0"
	Port           int               `json:"port"`           // Listen port, eg 8000
	UploadDir      string            `json:"uploadDir"`      // Content-addressed originals
	PredictionsDir string            `json:"predictionsDir"` // Annotated artifacts, served under /assets
	HistoryDB      string            `json:"historyDB"`      // SQLite file of the prediction history. "-" disables history.
	MaxUploadMB    int               `json:"maxUploadMB"`    // Maximum size of an uploaded file
	InferenceURL   string            `json:"inferenceURL"`   // If not empty, base URL of the inference backend, which overrides the endpoints in the model configs
	Classifier     ModelSourceConfig `json:"classifier"`     // Image classification model
	Detector       ModelSourceConfig `json:"detector"`       // Video object detection model
	RateLimit      RateLimitConfig   `json:"rateLimit"`
	Archive        StorageConfig     `json:"archive"` // Optional blob store that annotated artifacts are copied into
	HTTPS          *HTTPSConfig      `json:"https"`   // If not nil, serve HTTPS with certificates from Let's Encrypt
}

type ModelSourceConfig struct {
	Config      string `json:"config"`      // Path to the model config JSON
	DownloadURL string `json:"downloadURL"` // Fetch the model config from here if it does not exist yet
	Endpoint    string `json:"endpoint"`    // Overrides the endpoint in the model config
}

// Requests per minute, per IP address. Zero disables the limit.
type RateLimitConfig struct {
	UploadPerMinute  int `json:"uploadPerMinute"`
	PredictPerMinute int `json:"predictPerMinute"`
}

// At most one of the storage options may be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
	Prefix     string            `json:"prefix"` // Prepended to archived object names
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public. This allows us to record direct URLs into GCS in the history.
}

type HTTPSConfig struct {
	Domains []string `json:"domains"` // eg ["leafscan.example.com"]
	Email   string   `json:"email"`   // ACME account email
	CertDir string   `json:"certDir"` // Where certmagic stores certificates
}

// Environment variables that override the config file
const (
	EnvHost           = "LEAFSCAN_HOST"
	EnvPort           = "LEAFSCAN_PORT"
	EnvClassifierPath = "YOLO_CNN_MODEL_PATH"
	EnvDetectorPath   = "YOLO_DETECTION_MODEL_PATH"
	EnvInferenceURL   = "LEAFSCAN_INFERENCE_URL"
)

func DefaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8000,
		UploadDir:      "assets/uploads",
		PredictionsDir: "assets/predictions",
		HistoryDB:      "assets/history.sqlite",
		MaxUploadMB:    100,
		Classifier:     ModelSourceConfig{Config: "assets/models/yolov11n-cls.json"},
		Detector:       ModelSourceConfig{Config: "assets/models/yolov8s.json"},
		RateLimit: RateLimitConfig{
			UploadPerMinute:  60,
			PredictPerMinute: 30,
		},
	}
}

// LoadConfig reads the config file (if filename is not empty), and then applies environment overrides
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvHost); v != "" {
		c.Host = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("Invalid %v '%v': %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v := getenv(EnvClassifierPath); v != "" {
		c.Classifier.Config = v
	}
	if v := getenv(EnvDetectorPath); v != "" {
		c.Detector.Config = v
	}
	if v := getenv(EnvInferenceURL); v != "" {
		c.InferenceURL = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("Invalid port %v", c.Port)
	}
	if c.UploadDir == "" || c.PredictionsDir == "" {
		return fmt.Errorf("uploadDir and predictionsDir must be set")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("maxUploadMB must be positive")
	}
	if c.Archive.Filesystem != nil && c.Archive.GCS != nil {
		return fmt.Errorf("Only one of the archive storage options may be configured (i.e. either 'filesystem' or 'gcs')")
	}
	if c.HTTPS != nil && len(c.HTTPS.Domains) == 0 {
		return fmt.Errorf("https requires at least one domain")
	}
	return nil
}

// ListenAddr returns eg "0.0.0.0:8000"
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%v:%v", c.Host, c.Port)
}

func (c *Config) modelSource(m ModelSourceConfig, task string) nnload.Source {
	src := nnload.Source{
		ConfigFile:  m.Config,
		DownloadURL: m.DownloadURL,
		Endpoint:    m.Endpoint,
	}
	if src.Endpoint == "" && c.InferenceURL != "" {
		src.Endpoint = strings.TrimSuffix(c.InferenceURL, "/") + "/" + task
	}
	return src
}
