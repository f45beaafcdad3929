// Package config resolves runtime settings for both binaries. Values come
// from built-in defaults, an optional YAML file, environment variables and
// command line flags, in that order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rook-computer/fbembed/internal/bufpool"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile  = "FBEMBED_CONFIG"
	EnvListenAddr  = "FBEMBED_LISTEN"
	EnvDevMode     = "FBEMBED_DEV"
	EnvRefreshHz   = "FBEMBED_REFRESH_HZ"
	EnvFBDevice    = "FBEMBED_FB"
	EnvBufferCount = "FBEMBED_BUFFERS"
	EnvStdioLog    = "FBEMBED_STDIO_LOG"
	EnvPixelFormat = "FBEMBED_PIXEL_FORMAT"
)

// Config contains every setting a session needs.
//
// The intended listen defaults differ per binary:
// - real device: :80
// - simulator:   :8080
type Config struct {
	ListenAddr    string  `yaml:"listen"`
	DevMode       bool    `yaml:"dev"`
	RefreshHz     float64 `yaml:"refresh_hz"`
	FBDevice      string  `yaml:"fb_device"`
	KeyDevice     string  `yaml:"key_device"` // evdev node; empty disables the key watcher
	BufferCount   int     `yaml:"buffer_count"`
	PixelFormat   string  `yaml:"pixel_format"`
	Width         int     `yaml:"width"`  // simulator display size
	Height        int     `yaml:"height"` // simulator display size
	HUD           bool    `yaml:"hud"`
	OverlayBorder bool    `yaml:"overlay_border"`
	StampSizePx   int     `yaml:"stamp_size_px"`
	AutoAttach    bool    `yaml:"auto_attach"`
	Debug         bool    `yaml:"debug"`
	DebugLog      string  `yaml:"debug_log"`
	StdioLog      string  `yaml:"stdio_log"`
}

// Defaults returns the built-in settings with the given listen address.
func Defaults(listenAddr string) Config {
	return Config{
		ListenAddr:    listenAddr,
		RefreshHz:     60,
		FBDevice:      "/dev/fb0",
		BufferCount:   3,
		PixelFormat:   strings.ToLower(bufpool.DefaultFormat.String()),
		Width:         1280,
		Height:        720,
		HUD:           true,
		OverlayBorder: true,
		StampSizePx:   96,
		AutoAttach:    true,
		DebugLog:      "./fbembed-debug.log",
	}
}

// Load overlays the YAML file at path onto base. Keys missing from the file
// keep their base values.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any FBEMBED_* variables that are set.
func ApplyEnv(cfg Config) (Config, error) {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvFBDevice); v != "" {
		cfg.FBDevice = v
	}
	if v := os.Getenv(EnvStdioLog); v != "" {
		cfg.StdioLog = v
	}
	if v := os.Getenv(EnvPixelFormat); v != "" {
		cfg.PixelFormat = v
	}
	if raw := os.Getenv(EnvDevMode); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("%s must be a boolean (got %q): %w", EnvDevMode, raw, err)
		}
		cfg.DevMode = parsed
	}
	if raw := os.Getenv(EnvRefreshHz); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s must be a number (got %q): %w", EnvRefreshHz, raw, err)
		}
		cfg.RefreshHz = parsed
	}
	if raw := os.Getenv(EnvBufferCount); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("%s must be an integer (got %q): %w", EnvBufferCount, raw, err)
		}
		cfg.BufferCount = parsed
	}
	return cfg, nil
}

// RegisterFlags binds cfg's fields to fs, using the current values as flag
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.String("config", "", "YAML config file; also configurable via "+EnvConfigFile)
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "http listen address; also configurable via "+EnvListenAddr)
	fs.BoolVar(&c.DevMode, "dev", c.DevMode, "enable dev mode (permissive CORS); also configurable via "+EnvDevMode)
	fs.Float64Var(&c.RefreshHz, "refresh-hz", c.RefreshHz, "display refresh rate used for vsync pacing; also configurable via "+EnvRefreshHz)
	fs.StringVar(&c.FBDevice, "fb", c.FBDevice, "framebuffer device; also configurable via "+EnvFBDevice)
	fs.StringVar(&c.KeyDevice, "keys", c.KeyDevice, "evdev keyboard device for F2/F3/F4 controls (optional)")
	fs.IntVar(&c.BufferCount, "buffers", c.BufferCount, "frame buffers per target (min 2); also configurable via "+EnvBufferCount)
	fs.StringVar(&c.PixelFormat, "pixel-format", c.PixelFormat, "renderer buffer pixel format (rgba8unorm, bgra8unorm); also configurable via "+EnvPixelFormat)
	fs.IntVar(&c.Width, "width", c.Width, "simulated display width")
	fs.IntVar(&c.Height, "height", c.Height, "simulated display height")
	fs.BoolVar(&c.HUD, "hud", c.HUD, "draw the status HUD overlay")
	fs.BoolVar(&c.OverlayBorder, "overlay-border", c.OverlayBorder, "outline overlay layers")
	fs.IntVar(&c.StampSizePx, "stamp", c.StampSizePx, "QR frame stamp size in pixels; 0 disables it")
	fs.BoolVar(&c.AutoAttach, "auto-attach", c.AutoAttach, "attach the test pattern renderer at startup")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging to the debug log file")
	fs.StringVar(&c.DebugLog, "debug-log", c.DebugLog, "debug log file")
	fs.StringVar(&c.StdioLog, "stdio-log", c.StdioLog, "redirect stdout+stderr (including panics) to this file; also configurable via "+EnvStdioLog)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if !(c.RefreshHz > 0) {
		errs = append(errs, fmt.Errorf("refresh rate must be positive (got %v)", c.RefreshHz))
	}
	if c.BufferCount < 2 {
		errs = append(errs, fmt.Errorf("buffer count must be at least 2 (got %d)", c.BufferCount))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("display size must be positive (got %dx%d)", c.Width, c.Height))
	}
	if _, err := bufpool.ParseFormat(c.PixelFormat); err != nil {
		errs = append(errs, err)
	}
	if c.StampSizePx < 0 {
		errs = append(errs, fmt.Errorf("stamp size must not be negative (got %d)", c.StampSizePx))
	}
	return errors.Join(errs...)
}

// Resolve builds the final configuration for a binary: defaults, then the
// YAML file named by -config or FBEMBED_CONFIG, then the environment, then
// the remaining flags in args.
func Resolve(fs *flag.FlagSet, args []string, defaults Config) (Config, error) {
	cfg := defaults
	path := configPathFromArgs(args)
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		loaded, err := Load(path, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return cfg, err
	}
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPathFromArgs finds -config ahead of the real flag parse, since the
// file supplies the flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			return ""
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
