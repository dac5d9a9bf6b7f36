package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/pcarank/internal/rankctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rankctl.New().Execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
