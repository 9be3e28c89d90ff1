// Command mindtrap runs the MindTrap maze quiz server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindtrap/maze-server/internal/app"
	"github.com/mindtrap/maze-server/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	seedQuestions := flag.Bool("seed-questions", false, "load the built-in question bank when the database has none")
	flag.Parse()

	logger := log.New(os.Stdout, "[MAIN] ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config_failed error=%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup_failed error=%v", err)
	}
	if *seedQuestions {
		if _, err := a.SeedQuestions(ctx); err != nil {
			logger.Printf("seed_questions_failed error=%v", err)
		}
	}

	ln, err := a.Listen()
	if err != nil {
		_ = a.Shutdown(context.Background(), "listen_failed")
		logger.Fatalf("listen_failed addr=%s error=%v", cfg.Server.Addr, err)
	}
	logger.Printf("listening addr=%s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		reason := "signal"
		if ctx.Err() == nil {
			reason = "server_error"
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx, reason)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server_failed error=%v", err)
	}
	logger.Printf("stopped")
}
