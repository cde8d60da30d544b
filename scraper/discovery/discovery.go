// Package discovery finds public game ids by crawling battlesnake.com
// pages with goquery.
package discovery

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const userAgent = "mamba-scraper/1.0 (training-data-collector)"

// Config holds crawl configuration.
type Config struct {
	// RequestDelay spaces page fetches to stay polite.
	RequestDelay time.Duration
	// MaxPlayers caps how many player pages get followed from a
	// leaderboard. 0 means unlimited.
	MaxPlayers int
}

func DefaultConfig() Config {
	return Config{
		RequestDelay: 500 * time.Millisecond,
		MaxPlayers:   50,
	}
}

// Worker crawls pages for game links. It deduplicates within a crawl;
// callers own cross-run deduplication against the archive.
type Worker struct {
	config   Config
	client   *http.Client
	gameIDRe *regexp.Regexp
	playerRe *regexp.Regexp
}

func NewWorker(config Config) *Worker {
	return &Worker{
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
		gameIDRe: regexp.MustCompile(`/game/([a-f0-9-]+)`),
		// matches /leaderboard/{arena}/{username}/stats for any arena
		playerRe: regexp.MustCompile(`/leaderboard/[^/]+/([^/]+)/stats`),
	}
}

// GameIDs crawls pageURL for game links. A player stats page links games
// directly; a leaderboard page links only players, so when no game anchors
// turn up the player links are followed and their stats pages crawled
// instead. A partial result comes back alongside the error when the
// context is cancelled mid-crawl.
func (w *Worker) GameIDs(ctx context.Context, pageURL string) ([]string, error) {
	doc, err := w.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if ids := w.extractGameIDs(doc); len(ids) > 0 {
		return ids, nil
	}

	players := w.extractPlayers(doc)
	if len(players) == 0 {
		return nil, errors.Errorf("no game or player links on %s", pageURL)
	}
	if w.config.MaxPlayers > 0 && len(players) > w.config.MaxPlayers {
		players = players[:w.config.MaxPlayers]
	}
	klog.Infof("no game links on %s; following %d player pages", pageURL, len(players))

	seen := make(map[string]bool)
	var all []string
	for i, p := range players {
		if err := sleepCtx(ctx, w.config.RequestDelay); err != nil {
			return all, err
		}
		doc, err := w.fetch(ctx, p.statsURL)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			klog.Warningf("player %s: %v", p.username, err)
			continue
		}
		for _, id := range w.extractGameIDs(doc) {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
		klog.V(1).Infof("player %d/%d %s: %d game ids so far", i+1, len(players), p.username, len(all))
	}
	return all, nil
}

func (w *Worker) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	return doc, errors.Wrapf(err, "parsing %s", url)
}

func (w *Worker) extractGameIDs(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var ids []string
	doc.Find("a[href*='/game/']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if m := w.gameIDRe.FindStringSubmatch(href); len(m) >= 2 && !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	})
	return ids
}

// playerInfo is one row of a leaderboard.
type playerInfo struct {
	username string
	statsURL string
}

func (w *Worker) extractPlayers(doc *goquery.Document) []playerInfo {
	seen := make(map[string]bool)
	var players []playerInfo
	doc.Find("a[href*='/leaderboard/']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := w.playerRe.FindStringSubmatch(href)
		if len(m) < 2 || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		players = append(players, playerInfo{
			username: m[1],
			statsURL: "https://play.battlesnake.com" + href,
		})
	})
	return players
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
