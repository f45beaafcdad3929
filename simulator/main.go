package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rook-computer/fbembed/internal/app"
	"github.com/rook-computer/fbembed/internal/bufpool"
	"github.com/rook-computer/fbembed/internal/config"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/web"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cfg, err := config.Resolve(fs, os.Args[1:], config.Defaults(":8080"))
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(2)
	}

	var logger app.Logger = app.NoopLogger{}
	if cfg.Debug {
		logger = app.NewFileLogger(os.Stderr)
	}

	// Validate already rejected unknown names.
	pixelFormat, _ := bufpool.ParseFormat(cfg.PixelFormat)

	display := render.NewMemDisplay(cfg.Width, cfg.Height)
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
		os.Exit(2)
	}

	processCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.NewHTTPServer(web.ServerConfigFrom(cfg))
	server.Logger = logger
	server.Handler = web.NewDefaultMux(web.APIV1Deps{Session: a, Snapshot: a, Logger: logger})
	registerSimEndpoints(server.Handler, NewSimControl(a))

	if err := server.Start(processCtx); err != nil {
		fmt.Println("server start error:", err)
		os.Exit(1)
	}

	fmt.Println("fbembed simulator listening on", server.Addr)
	fmt.Printf("Display: %dx%d at %.2f Hz\n", cfg.Width, cfg.Height, cfg.RefreshHz)
	fmt.Println("API: http://" + displayAddr(server.Addr) + "/api/v1/")
	fmt.Println("Snapshot: http://" + displayAddr(server.Addr) + "/api/v1/snapshot.png")

	if err := a.Run(processCtx); err != nil && processCtx.Err() == nil {
		fmt.Println("app error:", err)
	}
	_ = server.Stop()
}

// displayAddr turns a listener address into one a browser on this machine
// can open.
func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1:8080"
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
