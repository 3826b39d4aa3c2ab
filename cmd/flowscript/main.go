package main

import (
	"context"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/flowscript/flowscript/cmd/flowscript/container"
	"github.com/flowscript/flowscript/cmd/flowscript/fanout"
	"github.com/flowscript/flowscript/cmd/flowscript/routes"
	"github.com/flowscript/flowscript/common/config"
	"github.com/flowscript/flowscript/common/logger"
	"github.com/flowscript/flowscript/common/server"
)

func main() {
	cfg, err := config.Load("flowscript")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := fanout.NewHub(log)
	go hub.Run()

	c, err := container.New(ctx, cfg, log, hub.Attach)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	go c.Manager.CleanupLoop(ctx, cfg.Engine.CleanupInterval, cfg.Engine.CleanupAge)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	ws := fanout.NewHandler(hub, c.Manager, log)
	routes.Register(e, c, ws)

	srv := server.New(cfg.Service.Name, cfg.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
