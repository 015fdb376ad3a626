package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CK6170/gravtie-go/database"
	"github.com/CK6170/gravtie-go/internal/config"
	"github.com/CK6170/gravtie-go/internal/server"
	"github.com/CK6170/gravtie-go/tie"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	var (
		addr   = flag.String("addr", cfg.Addr, "http listen address")
		dbDir  = flag.String("db", cfg.DBDir, "directory holding stations.db, landmeters.db and ships.db")
		filter = flag.String("filter", cfg.FilterMode.String(), "smoothing filter: zerophase or legacy")
	)
	flag.Parse()

	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	mode, err := tie.ParseFilterMode(*filter)
	if err != nil {
		logger.Error("bad -filter", "err", err)
		os.Exit(2)
	}

	db, err := database.Open(*dbDir)
	if err != nil {
		// Ties can still be entered by hand without the lists.
		logger.Warn("station database unavailable", "dir", *dbDir, "err", err)
		db = nil
	} else {
		logger.Info("station database loaded", "dir", *dbDir,
			"stations", len(db.Stations), "meters", len(db.Meters), "ships", len(db.Ships))
	}

	s := server.New(server.Options{
		Logger:     logger,
		DB:         db,
		FilterMode: mode,
		FAAFactor:  cfg.FAAFactor,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("serving", "addr", "http://"+*addr, "filter", mode, "faa", cfg.FAAFactor)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listen", "err", err)
		os.Exit(1)
	}
}
