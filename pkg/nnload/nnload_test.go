package nnload

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const clsConfig = `{
	"name": "tea-cls",
	"task": "classify",
	"width": 640,
	"height": 640,
	"classes": ["algal-spot", "brown-blight", "healthy"],
	"endpoint": "http://127.0.0.1:9000/classify"
}`

func writeFile(t *testing.T, filename, content string) {
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
}

func TestLoadClassifier(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "cls.json")
	writeFile(t, cfgFile, clsConfig)

	cls, err := LoadClassifier(log, Source{ConfigFile: cfgFile})
	require.NoError(t, err)
	require.Equal(t, "tea-cls", cls.Config().Name)
	require.Equal(t, 3, len(cls.Config().Classes))
	require.Equal(t, "http://127.0.0.1:9000/classify", cls.Config().Endpoint)

	cls, err = LoadClassifier(log, Source{ConfigFile: cfgFile, Endpoint: "http://other/classify"})
	require.NoError(t, err)
	require.Equal(t, "http://other/classify", cls.Config().Endpoint)

	// A classification model is not a detector
	_, err = LoadDetector(log, Source{ConfigFile: cfgFile})
	require.ErrorContains(t, err, "'classify' model")
}

func TestLoadDetectorClassesFile(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes.txt"), "helopeltis\nred-spider\n\n")
	cfgFile := filepath.Join(dir, "yolov8-det.json")
	writeFile(t, cfgFile, `{"classesFile": "classes.txt"}`)

	_, err := LoadDetector(log, Source{ConfigFile: cfgFile})
	require.ErrorContains(t, err, "no inference endpoint")

	det, err := LoadDetector(log, Source{ConfigFile: cfgFile, Endpoint: "http://127.0.0.1:9000/detect"})
	require.NoError(t, err)
	require.Equal(t, "yolov8-det", det.Config().Name)
	require.Equal(t, []string{"helopeltis", "red-spider"}, det.Config().Classes)
}

func TestLoadFailures(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	_, err := LoadClassifier(log, Source{})
	require.Error(t, err)
	_, err = LoadClassifier(log, Source{ConfigFile: filepath.Join(dir, "missing.json")})
	require.Error(t, err)

	cfgFile := filepath.Join(dir, "empty.json")
	writeFile(t, cfgFile, `{"endpoint": "http://x"}`)
	_, err = LoadClassifier(log, Source{ConfigFile: cfgFile})
	require.ErrorContains(t, err, "no classes")
}

func TestDownloadConfig(t *testing.T) {
	log := logs.NewTestingLog(t)
	nHits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nHits++
		if r.URL.Path != "/cls.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(clsConfig))
	}))
	defer srv.Close()

	cfgFile := filepath.Join(t.TempDir(), "models", "cls.json")
	src := Source{ConfigFile: cfgFile, DownloadURL: srv.URL + "/cls.json"}
	cls, err := LoadClassifier(log, src)
	require.NoError(t, err)
	require.Equal(t, "tea-cls", cls.Config().Name)
	require.FileExists(t, cfgFile)

	// Second load uses the file on disk
	_, err = LoadClassifier(log, src)
	require.NoError(t, err)
	require.Equal(t, 1, nHits)

	bad := Source{ConfigFile: filepath.Join(t.TempDir(), "x.json"), DownloadURL: srv.URL + "/nope.json"}
	_, err = LoadClassifier(log, bad)
	require.ErrorContains(t, err, "Download failed")
	require.NoFileExists(t, bad.ConfigFile+".tmp")
}
