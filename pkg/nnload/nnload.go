// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// neural network implementation (the HTTP inference backend), so that you can just call
// one function to load a model, and not need to know about the implementation details.
package nnload

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/iox"
	"github.com/leafscan/leafscan/pkg/nn"
	"github.com/leafscan/leafscan/pkg/nnhttp"
)

// Source describes where to find a model
type Source struct {
	ConfigFile  string // Path to the model config JSON, eg "models/yolo-cls.json"
	DownloadURL string // If ConfigFile does not exist, and this is not empty, download the config from here
	Endpoint    string // If not empty, overrides the endpoint in the config file
}

func downloadFile(srcUrl, targetFile string) error {
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	_, err = iox.WriteStreamToFile(targetFile, resp.Body)
	return err
}

// If the model config is not yet downloaded, then download it now.
// Returns immediately if the file already exists, or if there is no download URL.
func DownloadConfig(logs logs.Log, src Source) error {
	if src.DownloadURL == "" {
		return nil
	}
	if _, err := os.Stat(src.ConfigFile); os.IsNotExist(err) {
		logs.Infof("Downloading %v to %v", src.DownloadURL, src.ConfigFile)
		return downloadFile(src.DownloadURL, src.ConfigFile)
	} else {
		return err
	}
}

func loadConfig(logs logs.Log, src Source, task string) (*nn.ModelConfig, error) {
	if src.ConfigFile == "" {
		return nil, fmt.Errorf("No model config file specified")
	}
	if err := DownloadConfig(logs, src); err != nil {
		return nil, fmt.Errorf("Download failed: %w", err)
	}
	config, err := nn.LoadModelConfig(src.ConfigFile)
	if err != nil {
		return nil, err
	}
	if config.Task != "" && config.Task != task {
		return nil, fmt.Errorf("Model %v is a '%v' model, but we need a '%v' model", config.Name, config.Task, task)
	}
	config.Task = task
	if src.Endpoint != "" {
		config.Endpoint = src.Endpoint
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("Model %v has no inference endpoint", config.Name)
	}
	return config, nil
}

// LoadClassifier loads an image classification model.
func LoadClassifier(logs logs.Log, src Source) (nn.Classifier, error) {
	config, err := loadConfig(logs, src, nn.TaskClassify)
	if err != nil {
		return nil, err
	}
	logs.Infof("Loaded classifier %v with %v classes, served by %v", config.Name, len(config.Classes), config.Endpoint)
	return nnhttp.NewClassifier(config), nil
}

// LoadDetector loads an object detection model.
func LoadDetector(logs logs.Log, src Source) (nn.ObjectDetector, error) {
	config, err := loadConfig(logs, src, nn.TaskDetect)
	if err != nil {
		return nil, err
	}
	logs.Infof("Loaded detector %v with %v classes, served by %v", config.Name, len(config.Classes), config.Endpoint)
	return nnhttp.NewDetector(config), nil
}
