package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/pulse/internal/seedevents"
	"github.com/okian/pulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumEvents = 10000
	defaultNumItems  = 200
	defaultTopN      = 10
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 30 * time.Second
	defaultRunLimit  = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to generate and submit")
		numItems  = flag.Int("items", defaultNumItems, "Number of distinct items to spread events over")
		topN      = flag.Int("top", defaultTopN, "Number of trending entries to fetch per category")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose   = flag.Bool("verbose", false, "Log every trending entry")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	config := &seedevents.Config{
		BaseURL:   *baseURL,
		NumEvents: *numEvents,
		NumItems:  *numItems,
		TopN:      *topN,
		Workers:   *workers,
		Timeout:   *timeout,
		Verbose:   *verbose,
	}

	if err := seedevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("seeding run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
