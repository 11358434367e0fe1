package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatboard/middleware"
	"chatboard/pkg/broadcast"
	"chatboard/pkg/config"
	"chatboard/pkg/services"
	"chatboard/pkg/store"
	"chatboard/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("chatboard: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Log()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		log.Println("[store] closing...")
		if err := st.Close(); err != nil {
			log.Printf("[store] close error: %v", err)
		}
	}()

	hub := broadcast.NewHub(cfg.WSMaxMessageSize)
	go hub.Run()

	tickets := broadcast.NewTickets(cfg.BroadcastSecret, cfg.BroadcastTicketTTL)
	defer tickets.Close()
	limiter := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitCapacity)

	r, err := routes.NewRouter(cfg.Proxies(), routes.Deps{
		Messages: services.NewMessageService(st, hub),
		Hub:      hub,
		Tickets:  tickets,
		Limiter:  limiter,
		Origins:  cfg.Origins(),
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("[http] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("[http] shutting down gracefully...")
	case err := <-errChan:
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return fmt.Errorf("http: %w", err)
	}

	// Hijacked websocket connections are not tracked by srv.Shutdown, so
	// the hub closes them first.
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Printf("[hub] shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Println("[http] stopped cleanly")
	return nil
}
