package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const schemaTag = "turn_row_v1"

// WriteGame writes one finished game to dir/<gameID>.parquet, going
// through a temp file so readers never observe a partial file.
func WriteGame(dir, gameID string, rows []TurnRow) (string, error) {
	if gameID == "" {
		return "", fmt.Errorf("gameID is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outPath := filepath.Join(dir, gameID+".parquet")
	tmpPath := outPath + ".tmp"
	if err := writeRowsAtomic(tmpPath, outPath, rows); err != nil {
		return "", err
	}
	return outPath, nil
}

// WriteBatch writes rows to a fresh batch_<nanos>.parquet in dir. The
// file is staged under dir/tmp and renamed into place, so directory
// scanners only ever pick up complete batches.
func WriteBatch(dir string, rows []TurnRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	outPath := filepath.Join(dir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	if err := writeRowsAtomic(tmpPath, outPath, rows); err != nil {
		return "", err
	}
	return outPath, nil
}

func writeRowsAtomic(tmpPath, outPath string, rows []TurnRow) error {
	_ = os.Remove(tmpPath)

	source := ""
	if len(rows) > 0 {
		source = rows[0].Source
	}
	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schemaTag),
		parquet.KeyValueMetadata("source", source),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// BatchWriter buffers rows across games and flushes a batch file every N
// games. Safe for concurrent producers.
type BatchWriter struct {
	dir   string
	every int

	mu    sync.Mutex
	rows  []TurnRow
	games int

	batches      int
	rowsWritten  int
	gamesWritten int
}

func NewBatchWriter(dir string, gamesPerFlush int) *BatchWriter {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}
	return &BatchWriter{dir: dir, every: gamesPerFlush}
}

// AddGame buffers one game's rows. When the buffered game count reaches
// the flush threshold the batch is written out; the returned path is
// non-empty only for the call that flushed. The buffer is cleared even
// when the flush fails, matching a lossy-but-bounded policy: one bad
// batch must not grow memory without limit.
func (b *BatchWriter) AddGame(rows []TurnRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = append(b.rows, rows...)
	b.games++
	if b.games < b.every {
		return "", nil
	}
	return b.flushLocked()
}

// Close flushes whatever is buffered. The writer is reusable afterwards,
// but callers treat Close as final.
func (b *BatchWriter) Close() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *BatchWriter) flushLocked() (string, error) {
	rows := b.rows
	games := b.games
	b.rows = nil
	b.games = 0
	if len(rows) == 0 {
		return "", nil
	}

	path, err := WriteBatch(b.dir, rows)
	if err != nil {
		return "", fmt.Errorf("flush %d games: %w", games, err)
	}
	b.batches++
	b.rowsWritten += len(rows)
	b.gamesWritten += games
	return path, nil
}

// Totals reports batches, rows, and games written so far.
func (b *BatchWriter) Totals() (batches, rows, games int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches, b.rowsWritten, b.gamesWritten
}
