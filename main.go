package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rook-computer/fbembed/internal/app"
	"github.com/rook-computer/fbembed/internal/bufpool"
	"github.com/rook-computer/fbembed/internal/config"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/system"
	"github.com/rook-computer/fbembed/internal/web"
)

func main() {
	fmt.Println("fbembed starting")

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	detectRefresh := fs.Bool("detect-refresh", true, "read the refresh rate of the current video mode from sysfs, falling back to -refresh-hz")
	cfg, err := config.Resolve(fs, os.Args[1:], config.Defaults(":80"))
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(2)
	}

	// Best-effort: redirect all stdout/stderr output (including panic stack traces)
	// to a file so crashes are diagnosable even when the console is left in graphics mode.
	if cfg.StdioLog != "" {
		if err := redirectStdIO(cfg.StdioLog); err != nil {
			fmt.Println("stdio log redirect error:", err)
		}
	}

	// Local file logger when debug enabled
	var logger app.Logger = app.NoopLogger{}
	if cfg.Debug {
		f, err := os.OpenFile(cfg.DebugLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			defer f.Close()
			logger = app.NewFileLogger(f)
			logger.Infof("main", "debug logging enabled")
		} else {
			fmt.Println("debug log open error:", err)
		}
	}

	if *detectRefresh {
		if hz, err := system.RefreshRateFromSysfs(cfg.FBDevice); err == nil {
			logger.Infof("main", "display refresh %.2f Hz from sysfs", hz)
			cfg.RefreshHz = hz
		} else {
			logger.Infof("main", "refresh detection failed, using %.2f Hz: %v", cfg.RefreshHz, err)
		}
	}

	// Validate already rejected unknown names.
	pixelFormat, _ := bufpool.ParseFormat(cfg.PixelFormat)

	display, err := render.OpenFBDisplay(cfg.FBDevice, render.CanvasWidth, render.CanvasHeight, logger)
	if err != nil {
		fmt.Println("framebuffer error:", err)
		os.Exit(1)
	}
	defer display.Close()

	a, err := app.New(display, app.Options{
		RefreshHz:     cfg.RefreshHz,
		BufferCount:   cfg.BufferCount,
		HUD:           cfg.HUD,
		OverlayBorder: cfg.OverlayBorder,
		StampSizePx:   cfg.StampSizePx,
		PixelFormat:   pixelFormat,
		AutoAttach:    cfg.AutoAttach,
	}, logger)
	if err != nil {
		fmt.Println("app error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Switch console to KD_GRAPHICS to suppress hardware cursor
	restoreConsole := system.EnterGraphicsConsole(logger)
	defer restoreConsole()

	var keyPaths []string
	if cfg.KeyDevice != "" {
		keyPaths = []string{cfg.KeyDevice}
	}
	system.WatchKeys(ctx, logger, keyPaths, app.ControlKeys, func(k system.Key) {
		if err := a.HandleKey(ctx, k); err != nil {
			logger.Errorf("input", "%s: %v", k, err)
		}
	})

	// An empty listen address disables the API.
	var server web.Server = &web.NoopServer{}
	if cfg.ListenAddr != "" {
		httpServer := web.NewHTTPServer(web.ServerConfigFrom(cfg))
		httpServer.Logger = logger
		httpServer.Handler = web.NewDefaultMux(web.APIV1Deps{Session: a, Snapshot: a, Logger: logger})
		server = httpServer
	}
	if err := server.Start(ctx); err != nil {
		fmt.Println("server start error:", err)
	} else if hs, ok := server.(*web.HTTPServer); ok {
		fmt.Println("API: http://" + hs.Addr + "/api/v1/")
	}

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Println("app error:", err)
	}
	if err := server.Stop(); err != nil {
		fmt.Println("server stop error:", err)
	}
}
