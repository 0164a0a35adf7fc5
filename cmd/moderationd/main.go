package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sociallyhub/moderation/internal/app"
	"github.com/sociallyhub/moderation/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	command := "serve"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = app.RunServer(ctx, cfg)
	case "migrate":
		err = app.Migrate(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (expected serve or migrate)\n", command)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("exited with error")
	}
}
