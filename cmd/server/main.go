// Command server runs the AI game master HTTP service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmerah/ai-gamemaster/internal/cmd/server"
	platformcmd "github.com/mmerah/ai-gamemaster/internal/platform/cmd"
)

func main() {
	log.SetPrefix("gamemaster: ")
	log.SetFlags(log.LstdFlags)

	fs := flag.NewFlagSet("server", flag.ExitOnError)
	cfg, err := server.ParseConfig(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceGameMaster, func(ctx context.Context) error {
		return server.Run(ctx, cfg)
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
}
