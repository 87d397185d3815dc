// Package config holds facewatch's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/facewatch/internal/encoder"
)

// Duration is a time.Duration that reads and writes as "5s" in JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds runtime configuration for capture, detection and the app.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	// Detection backend
	BackendURL     string   `json:"backend_url"`
	RequestTimeout Duration `json:"request_timeout"`

	// Camera
	CameraIndex  int `json:"camera_index"`
	CameraWidth  int `json:"camera_width"`
	CameraHeight int `json:"camera_height"`

	// Cadence
	FPS         int `json:"fps"`
	RefreshRate int `json:"refresh_rate"`

	// Encoding of frames sent for detection
	Format  string `json:"format"`
	Quality int    `json:"quality"`

	// Snapshots and archive
	MaxSnapshots int    `json:"max_snapshots"`
	DBPath       string `json:"db_path"`

	// Surfaces
	Listen    string `json:"listen"`
	StaticDir string `json:"static_dir"`
	Window    bool   `json:"window"`
	Tray      bool   `json:"tray"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// DataDir returns the directory holding facewatch's database and assets.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facewatch"
	}
	return filepath.Join(home, ".facewatch")
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		BackendURL:     "http://localhost:5000",
		RequestTimeout: Duration(5 * time.Second),
		CameraIndex:    0,
		CameraWidth:    640,
		CameraHeight:   480,
		FPS:            30,
		RefreshRate:    60,
		Format:         string(encoder.FormatJPEG),
		Quality:        encoder.DefaultQuality,
		MaxSnapshots:   0,
		DBPath:         filepath.Join(DataDir(), "facewatch.db"),
		Listen:         ":8080",
		Window:         false,
		Tray:           false,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate clamps/normalizes values to safe ranges. It fails only for values
// that cannot be normalized.
func (c *Config) Validate() error {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backend_url %q must be an http(s) URL", c.BackendURL)
	}

	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.CameraIndex < 0 {
		c.CameraIndex = 0
	}
	if c.CameraWidth <= 0 {
		c.CameraWidth = 640
	}
	if c.CameraHeight <= 0 {
		c.CameraHeight = 480
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.RefreshRate <= 0 {
		c.RefreshRate = 60
	}

	format, err := encoder.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	c.Format = string(format)

	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = encoder.DefaultQuality
	}
	if c.MaxSnapshots < 0 {
		c.MaxSnapshots = 0
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	case "":
		c.LogFormat = "text"
	default:
		return fmt.Errorf("log_format %q: want text or json", c.LogFormat)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns Default(). Values in the file override the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
