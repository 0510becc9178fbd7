// collector renders listing pages, extracts validated property records and
// stores them as resumable batch output.
//
// Usage:
//
//	collector collect --input=<csv> [--output-dir=<dir>] [--group-size=N] [--no-resume]
//	collector scrape --url=<listing-url>
//	collector extract --html=<file> --url=<listing-url>
//	collector consolidate [--output-dir=<dir>] [--db=<path>]
//	collector serve [--addr=:5250] [--db=<path>]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"malmohomes/collector/internal/processor"
)

const (
	exitOK       = 0
	exitFailures = 1
	exitFatal    = 2
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	if code == exitFatal {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(code)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, processor.ErrRunHadFailures):
		return exitFailures
	default:
		return exitFatal
	}
}
