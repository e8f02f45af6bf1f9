package videox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// EncodeError is a failed re-encode. Output is ffmpeg's diagnostic text, verbatim.
type EncodeError struct {
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("Failed to process video with FFmpeg: %v", e.Output)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ReencodeArgs returns the ffmpeg arguments that turn src into a browser friendly H.264 file.
// speedFactor scales presentation timestamps, so 2 plays at half speed, and 0.5 at double speed.
func ReencodeArgs(srcFilename, dstFilename string, speedFactor float64) []string {
	return []string{
		"-i",
		srcFilename,
		"-y", // overwrite output file
		"-filter:v",
		"setpts=" + strconv.FormatFloat(speedFactor, 'f', -1, 64) + "*PTS",
		"-c:v",
		"libx264",
		"-pix_fmt",
		"yuv420p", // the only pixel format that every browser can play
		"-preset",
		"fast",
		"-crf", // constant rate factor
		"23",   // 0-51, 0 is lossless, 51 is worst quality
		dstFilename,
	}
}

// Reencode transcodes the intermediate video src into dst, adjusting the playback speed.
// If ffmpeg is not installed, the error wraps ErrAppNotFound.
// If ffmpeg fails, the error is an *EncodeError.
func Reencode(ctx context.Context, srcFilename, dstFilename string, speedFactor float64) error {
	_, err := RunAppCombinedOutput(ctx, "ffmpeg", ReencodeArgs(srcFilename, dstFilename, speedFactor))
	if err == nil {
		return nil
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return &EncodeError{
			Output: execErr.Output,
			Err:    execErr.Err,
		}
	}
	return err
}

// Reencoder is the default implementation of the re-encode stage, backed by ffmpeg
type Reencoder struct{}

func (Reencoder) Reencode(ctx context.Context, srcFilename, dstFilename string, speedFactor float64) error {
	return Reencode(ctx, srcFilename, dstFilename, speedFactor)
}
