// Command murmurd is the push-to-talk daemon: it owns the audio capture
// device, the loaded transcription model, and the global hotkey, and
// exposes a control surface over HTTP/websocket plus a gRPC health check.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/murmurhq/murmur/internal/config"
	"github.com/murmurhq/murmur/internal/healthsvc"
	"github.com/murmurhq/murmur/internal/hotkey"
	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/server"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		slog.Error("failed to load settings", "path", cfg.SettingsPath, "error", err)
		os.Exit(1)
	}

	pipe := pipeline.New(settings.PipelineConfig(), settings.NewInjector())
	if err := pipe.LoadFirstAvailable(cfg.ModelDir, settings.TranscriberSettings()); err != nil {
		slog.Error("no transcription model available", "model_dir", cfg.ModelDir, "error", err)
		os.Exit(1)
	}
	slog.Info("model loaded", "name", pipe.CurrentModelName())

	hook, err := startHotkeys(pipe, settings)
	if err != nil {
		slog.Error("failed to register hotkeys", "error", err)
		os.Exit(1)
	}
	defer hook.Stop()

	listModels := func() ([]string, error) {
		matches, err := filepath.Glob(filepath.Join(cfg.ModelDir, "*.bin"))
		if err != nil {
			return nil, err
		}
		return matches, nil
	}
	ctrl := server.New(pipe, &settings, cfg.SettingsPath, listModels)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      ctrl.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	health := healthsvc.New(pipe)
	ctrl.SetHealthNotifier(health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("failed to listen for gRPC health server", "addr", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("control surface starting", "http", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		slog.Info("health server starting", "grpc", cfg.GRPCAddr)
		if err := health.Serve(lis); err != nil {
			slog.Error("grpc health server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	health.Stop()
	pipe.Shutdown()
	slog.Info("shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// startHotkeys wires the global primary/send hotkeys to the Pipeline's
// recording lifecycle: key-down starts recording, key-up stops and
// transcribes, with the send variant appending a Return keystroke.
func startHotkeys(pipe *pipeline.Pipeline, settings config.Settings) (*hotkey.Hook, error) {
	primary, send, err := settings.HotkeyCodes()
	if err != nil {
		return nil, fmt.Errorf("parse hotkey settings: %w", err)
	}

	hook := hotkey.New(
		func(isSend bool) {
			if err := pipe.StartRecording(); err != nil {
				slog.Error("start recording failed", "error", err)
			}
		},
		func(isSend bool) {
			if _, err := pipe.StopRecordingAndTranscribe(isSend); err != nil {
				slog.Error("transcribe failed", "error", err)
			}
		},
	)
	hook.SetKeyCodes(primary, send)
	if err := hook.Start(); err != nil {
		return nil, err
	}
	return hook, nil
}
