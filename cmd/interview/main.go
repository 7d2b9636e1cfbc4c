package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	interviewcmd "github.com/caliperhq/caliper/internal/cmd/interview"
)

func main() {
	cfg, err := interviewcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[INTERVIEW] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := interviewcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
