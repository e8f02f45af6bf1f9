package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/media"
	"github.com/leafscan/leafscan/pkg/pipeline"
	"github.com/leafscan/leafscan/server"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// predict runs a model over a local image or video, without going through the HTTP server
func main() {
	parser := argparse.NewParser("predict", "Classify an image or detect objects in a video")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image (jpg, png) or video (mp4)", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output JSON file. If omitted, the results are written to stdout", Default: ""})
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON), for the model sources", Default: ""})
	predictionsDir := parser.String("p", "predictions", &argparse.Options{Help: "Directory for the annotated image or video", Default: "."})
	conf := parser.Float("", "conf", &argparse.Options{Help: "Detection confidence threshold (0..1)", Default: 0.25})
	imgsz := parser.Int("", "imgsz", &argparse.Options{Help: "Inference image size", Default: 640})
	speedFactor := parser.Float("", "speed", &argparse.Options{Help: "Playback speed factor of the labeled video. Greater than 1 is slower.", Default: pipeline.DefaultSpeedFactor})
	progress := parser.Flag("", "progress", &argparse.Options{Help: "Print detections of every frame to stderr", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	cfg, err := server.LoadConfig(*configFile)
	check(err)
	check(os.MkdirAll(*predictionsDir, 0755))

	kind := media.KindForExtension(media.Extension(*input))
	models := server.LoadModels(logger, cfg)
	defer models.Close()

	pipe := pipeline.New(logger, models.Classifier, models.Detector, *predictionsDir)
	if *progress {
		pipe.OnFrame = func(frameIndex int, detections []pipeline.Prediction) {
			if len(detections) != 0 {
				fmt.Fprintf(os.Stderr, "Frame %v: %v objects\n", frameIndex, len(detections))
			}
		}
	}

	var results any
	ctx := context.Background()
	switch kind {
	case media.KindImage:
		results, err = pipe.Classify(ctx, *input, *imgsz)
	case media.KindVideo:
		results, err = pipe.Detect(ctx, *input, pipeline.DetectParams{
			Conf:        float32(*conf),
			ImageSize:   *imgsz,
			SpeedFactor: *speedFactor,
		})
	default:
		err = fmt.Errorf("Unsupported file type for prediction: %v", filepath.Base(*input))
	}
	check(err)

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		check(err)
		defer f.Close()
		w = f
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(results))
}
