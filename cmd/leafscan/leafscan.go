package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/nnload"
	"github.com/leafscan/leafscan/pkg/videox"
	"github.com/leafscan/leafscan/server"
)

func main() {
	parser := argparse.NewParser("leafscan", "Tea leaf disease prediction service")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON). If omitted, defaults and environment variables are used.", Default: ""})
	downloadOnly := parser.Flag("", "download", &argparse.Options{Help: "Download the model configs, and exit", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := server.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	if *downloadOnly {
		for _, src := range []server.ModelSourceConfig{cfg.Classifier, cfg.Detector} {
			if err := nnload.DownloadConfig(logger, nnload.Source{ConfigFile: src.Config, DownloadURL: src.DownloadURL}); err != nil {
				logger.Errorf("%v", err)
				os.Exit(1)
			}
		}
		return
	}

	// Video prediction fails on first use without these, but images still work
	if err := videox.CheckTools(); err != nil {
		logger.Warnf("Video prediction is unavailable: %v", err)
	}

	models := server.LoadModels(logger, cfg)
	srv, err := server.NewServer(logger, cfg, models)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if cfg.HTTPS != nil {
		err = srv.ListenHTTPS(cfg.HTTPS)
	} else {
		err = srv.ListenHTTP(cfg.ListenAddr())
	}
	listenFailed := !errors.Is(err, http.ErrServerClosed)
	if listenFailed {
		logger.Errorf("Listen failed: %v", err)
		srv.Shutdown()
	}
	<-srv.ShutdownComplete
	if listenFailed {
		logger.Close()
		os.Exit(1)
	}
}
