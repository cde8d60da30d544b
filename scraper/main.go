// Scraper downloads finished public games into the parquet archive, one
// file per game. Game ids come from -ids, from crawling a page with
// -discover, or both; ids already present in the archive directory are
// skipped.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/scraper/discovery"
	"github.com/brensch/mamba/scraper/downloader"
	"github.com/brensch/mamba/scraper/logging"
)

func main() {
	klog.InitFlags(nil)
	ids := flag.String("ids", getEnvOrDefault("GAME_IDS", ""), "Comma-separated game ids to download")
	discoverURL := flag.String("discover", getEnvOrDefault("DISCOVER_URL", ""), "Leaderboard or player page to crawl for game ids")
	archiveDir := flag.String("archive-dir", getEnvOrDefault("ARCHIVE_DIR", "data/scraped"), "Directory for per-game parquet files")
	concurrency := flag.Int("concurrency", getEnvIntOrDefault("CONCURRENCY", 4), "Concurrent downloads")
	maxPlayers := flag.Int("max-players", getEnvIntOrDefault("MAX_PLAYERS", 50), "Player pages to follow from a leaderboard")
	requestDelay := flag.Duration("delay", getEnvDurationOrDefault("DELAY", 500*time.Millisecond), "Delay between discovery page fetches")
	flag.Parse()
	defer klog.Flush()

	if err := os.MkdirAll(*archiveDir, 0o755); err != nil {
		klog.Fatalf("creating archive dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gameIDs []string
	for _, id := range strings.Split(*ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			gameIDs = append(gameIDs, id)
		}
	}
	if *discoverURL != "" {
		worker := discovery.NewWorker(discovery.Config{
			RequestDelay: *requestDelay,
			MaxPlayers:   *maxPlayers,
		})
		found, err := worker.GameIDs(ctx, *discoverURL)
		if err != nil {
			klog.Errorf("discovery stopped early: %v", err)
		}
		klog.Infof("discovered %d game ids from %s", len(found), *discoverURL)
		gameIDs = append(gameIDs, found...)
	}
	if len(gameIDs) == 0 {
		klog.Fatal("nothing to do: pass -ids or -discover")
	}

	// dedupe, and drop games already on disk
	seen := make(map[string]bool)
	pending := make([]string, 0, len(gameIDs))
	skipped := 0
	for _, id := range gameIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := os.Stat(filepath.Join(*archiveDir, id+".parquet")); err == nil {
			skipped++
			continue
		}
		pending = append(pending, id)
	}
	klog.Infof("%d games to download (%d already archived)", len(pending), skipped)

	dlCfg := downloader.DefaultConfig()
	if klog.V(2).Enabled() {
		dlCfg.FrameLog = slog.New(logging.NewPrettyJSONHandler(os.Stdout, nil))
	}

	var downloaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for _, id := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frames, err := downloader.DownloadGame(gctx, id, dlCfg)
			if err != nil {
				failed.Add(1)
				klog.Warningf("download %s: %v", id, err)
				return nil
			}
			if len(frames) < 2 {
				failed.Add(1)
				klog.Warningf("download %s: only %d frames", id, len(frames))
				return nil
			}
			rows := downloader.BuildRows(id, frames)
			if len(rows) == 0 {
				failed.Add(1)
				klog.Warningf("download %s: no usable rows", id)
				return nil
			}
			path, err := archive.WriteGame(*archiveDir, id, rows)
			if err != nil {
				failed.Add(1)
				klog.Errorf("archive %s: %v", id, err)
				return nil
			}
			n := downloaded.Add(1)
			klog.V(1).Infof("archived %s: %d turns -> %s", id, len(frames), path)
			if n%25 == 0 {
				klog.Infof("progress: downloaded=%d failed=%d", n, failed.Load())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		klog.Errorf("download pool: %v", err)
	}
	klog.Infof("done: downloaded=%d failed=%d skipped=%d", downloaded.Load(), failed.Load(), skipped)
}

// Environment variable helpers
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
