package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/jsonic/jsonic"
)

var (
	cacheClear bool
	cacheWarm  []string

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect, warm or clear the cache snapshot",
		Long: paragraph(fmt.Sprintf("\n%s the cache snapshot configured with cache.snapshot. Warming synthesizes speech ahead of time so later runs start without a round trip.",
			keyword("Manage"))),
		Example: paragraph("jsonic cache\njsonic cache --warm \"Welcome back.\" --warm \"Goodbye.\"\njsonic cache --clear"),
		Args:    cobra.NoArgs,
		RunE:    runCache,
	}
)

func runCache(*cobra.Command, []string) error {
	cfg, err := jsonic.LoadConfigFromViper()
	if err != nil {
		return err
	}
	if cfg.CacheSnapshot == "" {
		return errors.New("no cache snapshot configured: set cache.snapshot in the config file")
	}

	switch {
	case cacheClear:
		if err := os.Remove(cfg.CacheSnapshot); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to remove snapshot: %w", err)
		}
		fmt.Println("Removed", cfg.CacheSnapshot)
		return nil

	case len(cacheWarm) > 0:
		if err := warmCache(); err != nil {
			return err
		}
	}

	info, err := jsonic.InspectSnapshot(cfg.CacheSnapshot)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Println(faint("No snapshot at " + cfg.CacheSnapshot))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(heading(cfg.CacheSnapshot))
	fmt.Printf("  %s %d\n", labelCell("entries"), info.Entries)
	fmt.Printf("  %s %s\n", labelCell("size"), humanize.Bytes(uint64(info.CompressedSize))) //nolint:gosec
	fmt.Printf("  %s %s\n", labelCell("saved"), humanize.Time(info.Saved))
	return nil
}

// warmCache prefetches every --warm text and lets Close save the snapshot.
func warmCache() error {
	s, err := newSession(false)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var failed int
	for _, text := range cacheWarm {
		if err := s.engine.Prefetch(ctx, jsonic.SayRequest{Text: text}); err != nil {
			fmt.Println(failure("✗"), text, faint(err.Error()))
			failed++
			continue
		}
		fmt.Println(success("✓"), text)
	}

	stats := s.engine.CacheStats()
	log.Debug("cache warmed", "entries", stats.Entries, "resolutions", stats.Resolutions, "failures", stats.Failures)

	if err := s.close(5 * time.Second); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d texts could not be synthesized", failed, len(cacheWarm))
	}
	return nil
}

func init() {
	cacheCmd.Flags().BoolVar(&cacheClear, "clear", false, "remove the snapshot")
	cacheCmd.Flags().StringArrayVar(&cacheWarm, "warm", nil, "synthesize text into the cache (repeatable)")
}
