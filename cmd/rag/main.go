package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ragreader/internal/domain"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		msg := domain.UserMessage(err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		if msg != err.Error() {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
