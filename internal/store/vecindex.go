package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// vecIndex manages the sqlite-vec index over archived line embeddings for
// fast KNN queries. If the extension fails to load, all operations are
// no-ops and search falls back to brute-force cosine similarity.
type vecIndex struct {
	db         *sql.DB
	dimensions int
	available  bool
}

type vecResult struct {
	LineKey  string
	Distance float64
}

func newVecIndex(db *sql.DB, dimensions int) *vecIndex {
	vi := &vecIndex{db: db, dimensions: dimensions}
	if err := vi.ensureSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  sqlite-vec not available, using linear scan: %v\n", err)
		vi.available = false
	} else {
		vi.available = true
	}
	return vi
}

func (vi *vecIndex) ensureSchema() error {
	// Verify vec0 extension is loaded
	var vecVersion string
	if err := vi.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("vec_version() failed: %w", err)
	}

	// Metadata table to track embedding dimensions
	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS vec_metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("failed to create vec_metadata: %w", err)
	}

	// ID mapping table (vec0 requires integer rowids, line keys are text)
	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS line_vec_ids (
		vec_id INTEGER PRIMARY KEY AUTOINCREMENT,
		line_key TEXT UNIQUE NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create vec ID mapping: %w", err)
	}

	// Handle dimension changes between embedder revisions
	vi.handleDimensionChange()

	// Create vec0 virtual table with cosine distance
	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS line_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		vi.dimensions,
	)
	if _, err := vi.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vec0 table: %w", err)
	}

	// Record current dimensions
	vi.db.Exec(`INSERT OR REPLACE INTO vec_metadata (key, value) VALUES ('dimensions', ?)`,
		fmt.Sprintf("%d", vi.dimensions))

	return nil
}

// handleDimensionChange drops the vec0 table when the embedder dimensions
// changed since the archive was last opened, so it can be recreated and
// backfilled with the correct width.
func (vi *vecIndex) handleDimensionChange() {
	var storedDim string
	err := vi.db.QueryRow(`SELECT value FROM vec_metadata WHERE key = 'dimensions'`).Scan(&storedDim)
	if err != nil {
		return // No stored dimensions yet, first run
	}
	if storedDim == fmt.Sprintf("%d", vi.dimensions) {
		return // Dimensions match
	}

	fmt.Fprintf(os.Stderr, "⚠️  Embedding dimensions changed (%s -> %d), rebuilding vec index\n", storedDim, vi.dimensions)
	vi.db.Exec(`DROP TABLE IF EXISTS line_embeddings`)
	vi.db.Exec(`DELETE FROM line_vec_ids`)
}

// Insert adds or replaces a line's embedding in the vec0 index.
func (vi *vecIndex) Insert(lineKey string, embedding []float32) error {
	if !vi.available || len(embedding) == 0 || len(embedding) != vi.dimensions {
		return nil
	}

	// Get or create vec_id for this line
	var vecID int64
	err := vi.db.QueryRow(`SELECT vec_id FROM line_vec_ids WHERE line_key = ?`, lineKey).Scan(&vecID)
	if err == sql.ErrNoRows {
		result, err := vi.db.Exec(`INSERT INTO line_vec_ids (line_key) VALUES (?)`, lineKey)
		if err != nil {
			return fmt.Errorf("failed to create vec ID mapping: %w", err)
		}
		vecID, _ = result.LastInsertId()
	} else if err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	// vec0 doesn't support ON CONFLICT, so delete first if exists
	vi.db.Exec(`DELETE FROM line_embeddings WHERE rowid = ?`, vecID)

	_, err = vi.db.Exec(`INSERT INTO line_embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob)
	if err != nil {
		return fmt.Errorf("failed to insert into vec0: %w", err)
	}

	return nil
}

// Search performs a KNN query and returns line keys with cosine distances.
func (vi *vecIndex) Search(queryEmbedding []float32, limit int) ([]vecResult, error) {
	if !vi.available {
		return nil, fmt.Errorf("vec index not available")
	}

	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	// Step 1: KNN query on vec0 (returns rowids + distances)
	rows, err := vi.db.Query(`
		SELECT rowid, distance
		FROM line_embeddings
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type rowResult struct {
		rowID    int64
		distance float64
	}
	var rowResults []rowResult
	for rows.Next() {
		var r rowResult
		if err := rows.Scan(&r.rowID, &r.distance); err != nil {
			continue
		}
		rowResults = append(rowResults, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rowResults) == 0 {
		return nil, nil
	}

	// Step 2: Batch-map rowids to line keys
	placeholders := make([]string, len(rowResults))
	args := make([]interface{}, len(rowResults))
	for i, rr := range rowResults {
		placeholders[i] = "?"
		args[i] = rr.rowID
	}

	mapRows, err := vi.db.Query(
		`SELECT vec_id, line_key FROM line_vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	keyMap := make(map[int64]string)
	for mapRows.Next() {
		var vecID int64
		var key string
		if err := mapRows.Scan(&vecID, &key); err != nil {
			continue
		}
		keyMap[vecID] = key
	}

	// Build results preserving KNN order
	var results []vecResult
	for _, rr := range rowResults {
		if key, ok := keyMap[rr.rowID]; ok {
			results = append(results, vecResult{LineKey: key, Distance: rr.distance})
		}
	}

	return results, nil
}

// Delete removes a line from the vec0 index.
func (vi *vecIndex) Delete(lineKey string) error {
	if !vi.available {
		return nil
	}
	var vecID int64
	if err := vi.db.QueryRow(`SELECT vec_id FROM line_vec_ids WHERE line_key = ?`, lineKey).Scan(&vecID); err != nil {
		return nil // Not in vec index
	}
	vi.db.Exec(`DELETE FROM line_embeddings WHERE rowid = ?`, vecID)
	vi.db.Exec(`DELETE FROM line_vec_ids WHERE vec_id = ?`, vecID)
	return nil
}

// Backfill populates the vec0 index from archived lines that have embeddings
// but no index entry yet. Returns the number of lines backfilled.
func (vi *vecIndex) Backfill(db *sql.DB) (int, error) {
	if !vi.available {
		return 0, nil
	}

	// Check if backfill is needed
	var vecCount int
	vi.db.QueryRow(`SELECT COUNT(*) FROM line_vec_ids`).Scan(&vecCount)

	var lineCount int
	db.QueryRow(`SELECT COUNT(*) FROM lines WHERE embedding IS NOT NULL AND embedding != '' AND embedding != '[]' AND embedding != 'null'`).Scan(&lineCount)

	if vecCount >= lineCount || lineCount == 0 {
		return 0, nil
	}

	// Fetch lines with embeddings that are not yet in the vec index
	rows, err := db.Query(`
		SELECT l.run_id, l.line_index, l.embedding
		FROM lines l
		LEFT JOIN line_vec_ids v ON v.line_key = l.run_id || ':' || l.line_index
		WHERE v.vec_id IS NULL
		AND l.embedding IS NOT NULL AND l.embedding != '' AND l.embedding != '[]' AND l.embedding != 'null'
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var runID, embJSON string
		var lineIndex int
		if err := rows.Scan(&runID, &lineIndex, &embJSON); err != nil {
			continue
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
			continue
		}

		if len(embedding) != vi.dimensions {
			continue // Skip mismatched dimensions
		}

		if err := vi.Insert(lineKey(runID, lineIndex), embedding); err != nil {
			continue
		}
		count++
	}

	return count, nil
}
