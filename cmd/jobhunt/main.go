package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheMichaelB/jobhunt/internal/models"
)

// exitLocked is EX_TEMPFAIL: the caller may retry later.
const exitLocked = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if apiClient != nil {
		_ = apiClient.Close()
	}

	if err != nil {
		if !errReported {
			printError("%v", err)
		}
		if errors.Is(err, models.ErrLocked) {
			os.Exit(exitLocked)
		}
		os.Exit(1)
	}
}
