package videox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrAppNotFound is returned when an external tool such as ffmpeg is not installed
var ErrAppNotFound = errors.New("executable not found")

// ExecError is a failed run of an external tool.
// Output is the combined stdout/stderr of the process.
type ExecError struct {
	App    string
	Output string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%v execution failed: %v (%v)", e.App, e.Err, e.Output)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Look up an executable, such as "ffmpeg" or "ffprobe"
func findApp(appName string) (string, error) {
	appPath, err := exec.LookPath(appName)
	if err != nil {
		return "", fmt.Errorf("Unable to find '%v' in your path: %w (%v)", appName, ErrAppNotFound, err)
	}
	return appPath, nil
}

// appName is an executable, such as "ffmpeg" or "ffprobe"
// args must not include the executable name as the first parameter
// Returns the output from exec.Cmd's "CombinedOutput" method.
func RunAppCombinedOutput(ctx context.Context, appName string, args []string) ([]byte, error) {
	appPath, err := findApp(appName)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, appPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &ExecError{
			App:    appName,
			Output: string(out),
			Err:    err,
		}
	}
	return out, nil
}

// CheckTools returns an error if ffmpeg or ffprobe is missing
func CheckTools() error {
	for _, app := range []string{"ffmpeg", "ffprobe"} {
		if _, err := findApp(app); err != nil {
			return err
		}
	}
	return nil
}
