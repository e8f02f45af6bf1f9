package videox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VideoInfo describes the first video stream of a file
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
}

// Extract width, height and frame rate of a video file
func ProbeVideo(ctx context.Context, srcFilename string) (VideoInfo, error) {
	args := []string{
		"-v",
		"error",
		"-select_streams",
		"v:0",
		"-show_entries",
		"stream=width,height,avg_frame_rate,r_frame_rate",
		"-of",
		"json",
		srcFilename,
	}
	out, err := RunAppCombinedOutput(ctx, "ffprobe", args)
	if err != nil {
		return VideoInfo{}, err
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	type probeJSON struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			AvgFrameRate string `json:"avg_frame_rate"`
			RFrameRate   string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	// ffprobe sometimes emits warnings before the JSON, so skip to the first brace
	outStr := string(out)
	if start := strings.IndexByte(outStr, '{'); start > 0 {
		outStr = outStr[start:]
	}
	probe := probeJSON{}
	if err := json.Unmarshal([]byte(outStr), &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("Unable to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("No video stream found")
	}
	s := probe.Streams[0]
	fps := parseFrameRate(s.AvgFrameRate)
	if fps == 0 {
		fps = parseFrameRate(s.RFrameRate)
	}
	return VideoInfo{
		Width:  s.Width,
		Height: s.Height,
		FPS:    fps,
	}, nil
}

// Parse an ffprobe rational such as "30000/1001". Returns 0 if the rate is unknown.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
