package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyawins-art/Time-stamp/internal/agent"
)

func main() {
	logger := log.New(os.Stdout, "tracker-agent ", log.Ldate|log.Ltime|log.LUTC)

	cfg, err := agent.FromFlags(os.Args[1:])
	if err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx, logger, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatalf("tracker-agent failed: %v", err)
	}
}
