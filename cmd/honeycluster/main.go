package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/melonattacker/honeycluster/internal/cli"
	"github.com/melonattacker/honeycluster/internal/model"
)

// Exit codes beyond 0/1.
const (
	exitEmptyDataset = 3
	exitInterrupted  = 130
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.Execute(ctx, os.Args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	case errors.Is(err, model.ErrEmptyDataset):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitEmptyDataset
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
}
