package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/sampler"
	"github.com/ayusman/facewatch/internal/server"
	"github.com/ayusman/facewatch/internal/session"
	"github.com/ayusman/facewatch/internal/snapshot"
	"github.com/ayusman/facewatch/internal/tray"
)

var (
	timeoutFlag time.Duration
	autostart   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection service with its HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	def := config.Default()
	f := serveCmd.Flags()

	f.StringVar(&flags.BackendURL, "backend", def.BackendURL, "detection backend base URL")
	f.DurationVar(&timeoutFlag, "timeout", time.Duration(def.RequestTimeout), "per-request detection timeout (0 disables)")
	f.IntVar(&flags.CameraIndex, "camera", def.CameraIndex, "camera device index")
	f.IntVar(&flags.CameraWidth, "width", def.CameraWidth, "requested capture width")
	f.IntVar(&flags.CameraHeight, "height", def.CameraHeight, "requested capture height")
	f.IntVar(&flags.FPS, "fps", def.FPS, "target frames per second")
	f.IntVar(&flags.RefreshRate, "refresh-rate", def.RefreshRate, "display refresh rate capping the tick rate")
	f.StringVar(&flags.Format, "format", def.Format, "detection payload format: jpeg or png")
	f.IntVar(&flags.Quality, "quality", def.Quality, "detection payload quality (1-100)")
	f.IntVar(&flags.MaxSnapshots, "max-snapshots", def.MaxSnapshots, "snapshots kept in memory (0 = unbounded)")
	f.StringVar(&flags.Listen, "listen", def.Listen, "HTTP listen address")
	f.StringVar(&flags.StaticDir, "static", def.StaticDir, "directory of static dashboard files")
	f.BoolVar(&flags.Window, "window", def.Window, "show the annotated preview in a desktop window")
	f.BoolVar(&flags.Tray, "tray", def.Tray, "show a system tray menu")
	f.BoolVar(&autostart, "autostart", false, "start a detection session immediately")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	enc, err := encoder.New(encoder.Options{Format: encoder.Format(cfg.Format), Quality: cfg.Quality})
	if err != nil {
		return err
	}

	frames := overlay.NewFrameHub(0)
	surfaces := overlay.MultiSurface{frames}
	if cfg.Window {
		window := overlay.NewWindow("facewatch")
		defer window.Close()
		surfaces = append(surfaces, window)
	}

	renderer := overlay.NewRenderer(surfaces)
	defer renderer.Close()

	hub := server.NewOverlayHub(logger)
	renderer.OnAccept(hub.Publish)

	timeout := time.Duration(cfg.RequestTimeout)
	if timeout == 0 {
		timeout = -1
	}

	ctrl := session.New(session.Config{
		Source: capture.NewCamera(capture.CameraOptions{
			DeviceID: cfg.CameraIndex,
			Width:    cfg.CameraWidth,
			Height:   cfg.CameraHeight,
			FPS:      cfg.FPS,
		}),
		Backend:        detector.NewHTTPBackend(cfg.BackendURL, detector.NewHTTPClient()),
		Sampler:        sampler.New(sampler.Config{FPS: cfg.FPS, RefreshRate: cfg.RefreshRate}),
		Encoder:        enc,
		Renderer:       renderer,
		RequestTimeout: timeout,
		Recorder:       st.Sessions(),
		Logger:         logger,
	})
	defer ctrl.Stop()

	snaps, err := snapshot.New(ctrl, snapshot.Options{
		MaxRetained: cfg.MaxSnapshots,
		Archive:     st.Snapshots(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir:  staticDir,
		Controller: ctrl,
		Snapshots:  snaps,
		Store:      st,
		Frames:     frames,
		Overlay:    hub,
		Logger:     logger,
	})

	logger.Info("facewatch starting",
		"version", Version, "backend", cfg.BackendURL, "camera", cfg.CameraIndex,
		"fps", cfg.FPS, "listen", cfg.Listen)

	if autostart {
		if err := ctrl.Start(ctx); err != nil {
			logger.Error("autostart failed", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Listen)
	}()

	if cfg.Tray {
		t := tray.New(tray.Actions{
			Active: func() bool { return ctrl.State() == session.Active },
			Start:  func() error { return ctrl.Start(ctx) },
			Stop:   ctrl.Stop,
			Capture: func() error {
				_, err := snaps.Capture()
				return err
			},
			Dashboard: func() { openBrowser(dashboardURL(cfg.Listen)) },
			Quit:      cancel,
		}, logger)
		t.SetActive(ctrl.State() == session.Active)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
		cancel()
	}

	err = <-errCh
	if stopErr := ctrl.Stop(); stopErr != nil {
		logger.Error("failed to stop session", "error", stopErr)
	}
	logger.Info("facewatch stopped")
	return err
}

func dashboardURL(listen string) string {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("failed to open browser", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and the data directory.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web", filepath.Join(config.DataDir(), "web")}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
