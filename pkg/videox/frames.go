package videox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
)

// FrameReader decodes a video file into RGBA frames, by piping raw video out of an ffmpeg child process
type FrameReader struct {
	info VideoInfo

	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    bytes.Buffer
	frameSize int
	eof       bool
	closed    bool
}

// OpenFrameReader probes the video, and starts decoding it.
// You must Close() the reader, otherwise the ffmpeg process is leaked.
func OpenFrameReader(ctx context.Context, srcFilename string) (*FrameReader, error) {
	info, err := ProbeVideo(ctx, srcFilename)
	if err != nil {
		return nil, fmt.Errorf("Probing %v failed: %w", srcFilename, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("Video %v has invalid dimensions %v x %v", srcFilename, info.Width, info.Height)
	}
	appPath, err := findApp("ffmpeg")
	if err != nil {
		return nil, err
	}
	args := []string{
		"-v",
		"error",
		"-noautorotate", // keep the dimensions that ffprobe reported
		"-i",
		srcFilename,
		"-f",
		"rawvideo",
		"-pix_fmt",
		"rgba",
		"pipe:1",
	}
	r := &FrameReader{
		info:      info,
		frameSize: info.Width * info.Height * 4,
	}
	r.cmd = exec.CommandContext(ctx, appPath, args...)
	r.cmd.Stderr = &r.stderr
	if r.stdout, err = r.cmd.StdoutPipe(); err != nil {
		return nil, err
	}
	if err := r.cmd.Start(); err != nil {
		return nil, fmt.Errorf("Starting decoder for %v failed: %w", srcFilename, err)
	}
	return r, nil
}

// Info returns the dimensions and frame rate of the video
func (r *FrameReader) Info() VideoInfo {
	return r.info
}

// ReadFrame returns the next frame, or io.EOF when the video is finished.
// Every call returns a newly allocated image.
func (r *FrameReader) ReadFrame() (*image.RGBA, error) {
	if r.eof {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, r.info.Width, r.info.Height))
	_, err := io.ReadFull(r.stdout, img.Pix[:r.frameSize])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		// A truncated final frame is dropped
		r.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Close stops the decoder. If the whole video was read, then any decoding failure is returned here.
func (r *FrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if !r.eof {
		r.cmd.Process.Kill()
		r.cmd.Wait()
		return nil
	}
	if err := r.cmd.Wait(); err != nil {
		return &ExecError{App: "ffmpeg", Output: r.stderr.String(), Err: err}
	}
	return nil
}

// FrameWriter encodes RGBA frames into an MPEG-4 Part 2 video (the same codec as OpenCV's 'mp4v'),
// by piping raw video into an ffmpeg child process.
type FrameWriter struct {
	Info VideoInfo

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	closed bool
}

// EvenSize rounds a frame size up to even dimensions, which yuv420p requires.
// This is the size of the video that FrameWriter produces.
func EvenSize(width, height int) (int, int) {
	return width + width%2, height + height%2
}

// FrameWriterArgs returns the ffmpeg arguments that encode raw RGBA frames of the given size from stdin.
// Odd-sized frames are padded with a black row or column on the bottom or right, up to EvenSize.
func FrameWriterArgs(dstFilename string, info VideoInfo) []string {
	return []string{
		"-v", "error",
		"-y", // overwrite output file
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%vx%v", info.Width, info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "mpeg4",
		"-q:v", "2", // 1-31, lower is better
		"-pix_fmt", "yuv420p",
		dstFilename,
	}
}

// CreateFrameWriter starts an encoder that writes to dstFilename.
// You must Close() the writer to finish the file.
func CreateFrameWriter(ctx context.Context, dstFilename string, info VideoInfo) (*FrameWriter, error) {
	appPath, err := findApp("ffmpeg")
	if err != nil {
		return nil, err
	}
	args := FrameWriterArgs(dstFilename, info)
	w := &FrameWriter{
		Info: info,
	}
	w.cmd = exec.CommandContext(ctx, appPath, args...)
	w.cmd.Stderr = &w.stderr
	if w.stdin, err = w.cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if err := w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("Starting encoder for %v failed: %w", dstFilename, err)
	}
	return w, nil
}

// WriteFrame appends one frame. The frame must have the dimensions given to CreateFrameWriter.
func (w *FrameWriter) WriteFrame(img *image.RGBA) error {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if width != w.Info.Width || height != w.Info.Height {
		return fmt.Errorf("Frame size %v x %v does not match video size %v x %v", width, height, w.Info.Width, w.Info.Height)
	}
	rowBytes := width * 4
	if img.Stride == rowBytes && img.Rect.Min == (image.Point{}) {
		_, err := w.stdin.Write(img.Pix[:rowBytes*height])
		return w.wrapErr(err)
	}
	for y := 0; y < height; y++ {
		offset := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		if _, err := w.stdin.Write(img.Pix[offset : offset+rowBytes]); err != nil {
			return w.wrapErr(err)
		}
	}
	return nil
}

func (w *FrameWriter) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("Writing video frame failed: %w (%v)", err, w.stderr.String())
}

// Close flushes the encoder and waits for ffmpeg to finish writing the file
func (w *FrameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return &ExecError{App: "ffmpeg", Output: w.stderr.String(), Err: err}
	}
	return nil
}
