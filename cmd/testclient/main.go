// Command testclient drives a sustained stream of concurrent HTTP GET
// requests against a catalog of URLs, injecting controlled perturbations
// and verifying responses against ground truth. See engine.doc for the
// package-level overview.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loadlab/testclient/engine"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fs, err := engine.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	bootstrapReporter := engine.NewReporter(os.Stdout, false)

	cfg, err := engine.LoadConfig(fs, bootstrapReporter)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if help, _ := fs.GetBool("help"); help || cfg.URLFile == "" {
		engine.PrintUsage(os.Stderr, fs)
		return 1
	}

	if cfg.SaveConfig != "" {
		f, err := os.Create(cfg.SaveConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		err = engine.SaveConfig(f, cfg)
		f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	reporter := engine.NewReporter(os.Stdout, cfg.Quiet)

	catalog, err := engine.LoadCatalog(ctx, cfg.URLFile, cfg.Md5List, cfg.LocalList, cfg.ServerList)
	if err != nil {
		reporter.Fatal("%v", err)
		return 1
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := engine.NewEngine(cfg, catalog, reporter, rng)

	if err := e.Run(ctx); err != nil {
		reporter.Fatal("%v", err)
		return 1
	}

	e.PrintSummary(os.Stdout)
	return 0
}
