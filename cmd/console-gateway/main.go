package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsconsole/internal/authz"
	"opsconsole/internal/gateway"
	"opsconsole/internal/routes"
	"opsconsole/pkg/config"
	"opsconsole/pkg/logger"
	"opsconsole/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	table, err := routes.Load(cfg.RoutesFile)
	if err != nil {
		log.Fatalw("route table", "err", err, "file", cfg.RoutesFile)
	}
	authzOpts := []authz.Option{authz.WithPermissionsClaim(cfg.PermissionsClaim)}
	if cfg.PolicyFile != "" {
		p, err := authz.LoadPolicy(context.Background(), cfg.PolicyFile)
		if err != nil {
			log.Fatalw("authz policy", "err", err, "file", cfg.PolicyFile)
		}
		authzOpts = append(authzOpts, authz.WithPolicy(p))
	}

	tracing, shutdownTracing := middleware.InitTracing("opsconsole-gateway", log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.DebugWriteHeader(log))
	r.Use(middleware.Tracing(tracing))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionSlot(cfg.SessionSlotKey, cfg.CookieSecure))
		gateway.New(table, log, gateway.WithAuthz(authzOpts...), gateway.WithStaticDir(cfg.StaticDir)).RegisterHTTP(r)
	})

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("console-gateway listening", "addr", cfg.GatewayAddr, "routes", len(table.Routes))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = shutdownTracing(ctx)
	fmt.Println("console-gateway stopped")
}
