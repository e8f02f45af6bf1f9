package videox

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReencodeArgs(t *testing.T) {
	args := ReencodeArgs("in_temp.mp4", "out_predicted.mp4", 2)
	require.Equal(t, []string{
		"-i", "in_temp.mp4",
		"-y",
		"-filter:v", "setpts=2*PTS",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-crf", "23",
		"out_predicted.mp4",
	}, args)
	require.Contains(t, ReencodeArgs("a", "b", 0.5), "setpts=0.5*PTS")
}

func TestFrameWriterArgs(t *testing.T) {
	args := FrameWriterArgs("leaf_temp.mp4", VideoInfo{Width: 641, Height: 479, FPS: 29.97})
	require.Equal(t, []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", "641x479",
		"-r", "29.97",
		"-i", "pipe:0",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "mpeg4",
		"-q:v", "2",
		"-pix_fmt", "yuv420p",
		"leaf_temp.mp4",
	}, args)

	w, h := EvenSize(641, 479)
	require.Equal(t, 642, w)
	require.Equal(t, 480, h)
	w, h = EvenSize(640, 480)
	require.Equal(t, 640, w)
	require.Equal(t, 480, h)
}

func TestParseFrameRate(t *testing.T) {
	require.Equal(t, 30.0, parseFrameRate("30/1"))
	require.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.001)
	require.Equal(t, 0.0, parseFrameRate("0/0"))
	require.Equal(t, 25.0, parseFrameRate("25"))
	require.Equal(t, 0.0, parseFrameRate(""))
}

func TestParseProbe(t *testing.T) {
	out := []byte(`Warning: using insecure memory!
{
    "programs": [],
    "streams": [
        {
            "width": 640,
            "height": 360,
            "r_frame_rate": "30/1",
            "avg_frame_rate": "0/0"
        }
    ]
}`)
	info, err := parseProbe(out)
	require.NoError(t, err)
	require.Equal(t, VideoInfo{Width: 640, Height: 360, FPS: 30}, info)

	_, err = parseProbe([]byte(`{"streams": []}`))
	require.Error(t, err)
}

func TestMissingApp(t *testing.T) {
	_, err := RunAppCombinedOutput(context.Background(), "ffmpeg-that-does-not-exist", nil)
	require.ErrorIs(t, err, ErrAppNotFound)
}

func TestExecErrorKeepsOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	_, err := RunAppCombinedOutput(context.Background(), "sh", []string{"-c", "echo broken pipe >&2; exit 3"})
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	require.Equal(t, "broken pipe\n", execErr.Output)
}

func TestReencodeFailureIsEncodeError(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	dir := t.TempDir()
	err := Reencode(context.Background(), filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "out.mp4"), 2)
	var encErr *EncodeError
	require.True(t, errors.As(err, &encErr))
	require.NotEmpty(t, encErr.Output)
}

func TestFrameRoundTrip(t *testing.T) {
	if err := CheckTools(); err != nil {
		t.Skip(err)
	}
	dir := t.TempDir()
	filename := filepath.Join(dir, "frames.mp4")
	info := VideoInfo{Width: 64, Height: 48, FPS: 10}

	w, err := CreateFrameWriter(context.Background(), filename, info)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		img := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
		for p := range img.Pix {
			img.Pix[p] = uint8(i * 40)
		}
		img.Set(0, 0, color.RGBA{255, 0, 0, 255})
		require.NoError(t, w.WriteFrame(img))
	}
	require.Error(t, w.WriteFrame(image.NewRGBA(image.Rect(0, 0, 10, 10))))
	require.NoError(t, w.Close())

	st, err := os.Stat(filename)
	require.NoError(t, err)
	require.NotZero(t, st.Size())

	r, err := OpenFrameReader(context.Background(), filename)
	require.NoError(t, err)
	require.Equal(t, 64, r.Info().Width)
	require.Equal(t, 48, r.Info().Height)
	require.InDelta(t, 10, r.Info().FPS, 0.01)
	nFrames := 0
	for {
		_, err := r.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		nFrames++
	}
	require.NoError(t, r.Close())
	require.Equal(t, 6, nFrames)
}

func TestFrameWriterOddSize(t *testing.T) {
	if err := CheckTools(); err != nil {
		t.Skip(err)
	}
	filename := filepath.Join(t.TempDir(), "odd.mp4")
	info := VideoInfo{Width: 33, Height: 25, FPS: 10}
	w, err := CreateFrameWriter(context.Background(), filename, info)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteFrame(image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))))
	}
	require.NoError(t, w.Close())

	probed, err := ProbeVideo(context.Background(), filename)
	require.NoError(t, err)
	width, height := EvenSize(info.Width, info.Height)
	require.Equal(t, width, probed.Width)
	require.Equal(t, height, probed.Height)
}
