package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keyawins-art/Time-stamp/internal/tui"
)

func main() {
	fs := flag.NewFlagSet("tracker-top", flag.ExitOnError)
	serverURL := fs.String("server", envOrDefault("TRACKER_TOP_SERVER_URL", "http://localhost:5000"), "tracker server base url")
	_ = fs.Parse(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := tui.Run(ctx, strings.TrimSpace(*serverURL)); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Fatalf("tracker-top failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
