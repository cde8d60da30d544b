package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Server holds shared state for the HTTP handlers.
type Server struct {
	cache *DBCache
}

func NewServer(cache *DBCache) *Server {
	return &Server{cache: cache}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/api/lengths", s.handleLengths)
	mux.HandleFunc("/api/games", s.handleGames)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	v, err := s.cache.Cached("summary", func(db *sql.DB) (any, error) {
		return querySummary(db)
	})
	respond(w, r, v, err)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	bucket := int32(parseIntQuery(r, "bucket", 10))
	if bucket <= 0 {
		bucket = 10
	}
	v, err := s.cache.Cached(fmt.Sprintf("control:%d", bucket), func(db *sql.DB) (any, error) {
		return queryControl(db, bucket)
	})
	respond(w, r, v, err)
}

func (s *Server) handleLengths(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	bucket := int32(parseIntQuery(r, "bucket", 25))
	if bucket <= 0 {
		bucket = 25
	}
	v, err := s.cache.Cached(fmt.Sprintf("lengths:%d", bucket), func(db *sql.DB) (any, error) {
		return queryLengths(db, bucket)
	})
	respond(w, r, v, err)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	limit := parseIntQuery(r, "limit", 100)
	if limit <= 0 || limit > 10000 {
		limit = 100
	}
	v, err := s.cache.Cached(fmt.Sprintf("games:%d", limit), func(db *sql.DB) (any, error) {
		return queryGames(db, limit)
	})
	respond(w, r, v, err)
}

// allowGet applies CORS headers and filters methods; OPTIONS preflights
// return immediately.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		klog.Errorf("%s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
