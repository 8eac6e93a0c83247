package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/birdlens/birdlens/cmd"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=..."
var (
	version   string
	buildDate string
	commit    string
)

func main() {
	os.Exit(run())
}

func run() int {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate, Commit: commit}
	settings := &conf.Settings{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RootCommand(settings, build).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
