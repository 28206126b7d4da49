package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"buffet-system/internal/app/api"
	"buffet-system/internal/common/config"
	"buffet-system/internal/common/db"
	"buffet-system/internal/common/httpx"
	"buffet-system/internal/common/logger"
	"buffet-system/internal/common/redisx"
	"buffet-system/internal/gateway"
	"buffet-system/internal/hub"
	"buffet-system/internal/notify"
	"buffet-system/internal/repository"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default: config.yaml, deploy/config.example.yaml)")
	flag.Parse()

	if *cfgPath == "" {
		found, err := config.FindConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "no config file found; pass --config")
			os.Exit(2)
		}
		*cfgPath = found
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format, "buffet-system")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		lg.Fatal("postgres connect failed", zap.Error(err))
	}
	defer conn.Close()
	lg.Info("postgres connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	rdb, err := redisx.Connect(ctx, cfg.Redis)
	if err != nil {
		lg.Fatal("redis connect failed", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		lg.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		lg.Info("redis not configured, token cache disabled")
	}

	store := repository.NewPGStore(conn, lg)

	h := hub.New(hub.Config{
		SendBuffer:   cfg.Hub.SendBuffer,
		PingInterval: time.Duration(cfg.Hub.PingIntervalSec) * time.Second,
		PongWait:     time.Duration(cfg.Hub.PongWaitSec) * time.Second,
	}, lg)
	defer h.Close()

	gw := gateway.New(store, h, lg)
	if cfg.Gateway.LockWaitMS > 0 {
		gw.LockWait = time.Duration(cfg.Gateway.LockWaitMS) * time.Millisecond
	}
	if cfg.Notify.WebhookURL != "" {
		gw.SetPaymentNotifier(notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Token, lg))
		lg.Info("payment webhook enabled")
	}

	resolver := hub.NewTokenResolver(store, rdb,
		time.Duration(cfg.Redis.TokenTTLHours)*time.Hour, lg)
	handler := api.New(gw, store, h, resolver, lg)

	srv := httpx.New(":"+strconv.Itoa(cfg.HTTP.Port), handler.Routes())
	lg.Info("service started", zap.Int("port", cfg.HTTP.Port))
	if err := srv.Run(ctx); err != nil {
		lg.Fatal("http server failed", zap.Error(err))
	}
	lg.Info("shutdown complete")
}
