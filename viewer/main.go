// Viewer serves archive statistics over HTTP: DuckDB queries on the
// parquet dataset, JSON out. It reads the same files the executor and
// scraper write, picking up new ones as the cache TTL lapses.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

// Summary is the whole-archive rollup.
type Summary struct {
	Games   int64         `json:"games"`
	Turns   int64         `json:"turns"`
	Draws   int64         `json:"draws"`
	Winners []WinnerCount `json:"winners"`
}

type WinnerCount struct {
	SnakeID string `json:"snake_id"`
	Wins    int64  `json:"wins"`
}

// ControlPoint is one snake's average board control within a turn bucket.
type ControlPoint struct {
	SnakeID string  `json:"snake_id"`
	Bucket  int32   `json:"turn_bucket"`
	Control float32 `json:"control"`
	Samples int64   `json:"samples"`
}

// LengthBucket is one bar of the game-length histogram.
type LengthBucket struct {
	Bucket int32 `json:"turn_bucket"`
	Games  int64 `json:"games"`
}

// GameSummary is one game in the /api/games listing.
type GameSummary struct {
	GameID string `json:"game_id"`
	Source string `json:"source"`
	Turns  int32  `json:"turns"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	Winner string `json:"winner"`
	File   string `json:"file"`
}

func main() {
	klog.InitFlags(nil)
	port := flag.Int("port", 8081, "HTTP listen port")
	archiveDir := flag.String("archive-dir", "data", "Root directory of parquet archives")
	cacheTTL := flag.Duration("cache-ttl", 30*time.Second, "How long query results and the file listing stay cached")
	flag.Parse()
	defer klog.Flush()

	cache := NewDBCache(*archiveDir, *cacheTTL)
	defer cache.Close()

	srv := NewServer(cache)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", *port)
	klog.Infof("viewer listening on %s (archive %s, ttl %s)", addr, *archiveDir, *cacheTTL)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	klog.Fatal(server.ListenAndServe())
}
