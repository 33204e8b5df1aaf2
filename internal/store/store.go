// Package store archives analysis runs in a local SQLite database and
// serves them back for audit, export, and search.
//
// A run is keyed by a deterministic ID derived from the session name and
// the parameter hash, so re-analyzing an unchanged session with unchanged
// parameters replaces the same row instead of piling up duplicates.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/transcript"
	_ "github.com/mattn/go-sqlite3"
)

// RunInfo summarizes one archived run.
type RunInfo struct {
	ID            string    `json:"id"`
	Session       string    `json:"session"`
	KernelVersion string    `json:"kernel_version"`
	ParamsHash    string    `json:"params_hash"`
	Profile       string    `json:"profile,omitempty"`
	Rounds        int       `json:"rounds"`
	Nodes         int       `json:"nodes"`
	Edges         int       `json:"edges"`
	Unabsorbed    int       `json:"unabsorbed"`
	Lines         int       `json:"lines"`
	CreatedAt     time.Time `json:"created_at"`
}

// Run is a fully loaded archived run, enough to render reports, audits, and
// traces without re-analyzing the session.
type Run struct {
	Info       RunInfo              `json:"info"`
	Params     causal.Params        `json:"params"`
	Nodes      []causal.Node        `json:"nodes"`
	Edges      []causal.ContextEdge `json:"edges,omitempty"`
	Unabsorbed []causal.Singleton   `json:"unabsorbed,omitempty"`
	Metrics    []causal.Metrics     `json:"round_metrics"`
	Lines      []transcript.Line    `json:"lines"`
	Eligible   []bool               `json:"eligible"`
	Traces     []causal.Trace       `json:"traces,omitempty"`
}

// LineHit is one line-search result.
type LineHit struct {
	RunID     string  `json:"run_id"`
	Session   string  `json:"session"`
	LineIndex int     `json:"line_index"`
	Author    string  `json:"author"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Store provides the local run archive backed by SQLite
type Store struct {
	db       *sql.DB
	dataDir  string
	embedder *LineEmbedder

	// Vector index for fast line search (nil ops if sqlite-vec unavailable)
	vecIdx *vecIndex
}

// GetDB returns the underlying SQL database handle
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Open creates or opens the run archive under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:       db,
		dataDir:  dataDir,
		embedder: NewLineEmbedder(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	// Initialize sqlite-vec index for fast line search
	store.vecIdx = newVecIndex(db, store.embedder.Dimensions())
	if store.vecIdx.available {
		if n, err := store.vecIdx.Backfill(db); err == nil && n > 0 {
			fmt.Fprintf(os.Stderr, "🔍 Backfilled %d lines into vec index\n", n)
		}
	}

	return store, nil
}

// initSchema creates the database tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		kernel_version TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		params_json TEXT NOT NULL,
		profile TEXT,
		rounds INTEGER NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		unabsorbed_count INTEGER NOT NULL,
		line_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS nodes (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		level INTEGER NOT NULL,
		kind TEXT NOT NULL,
		cause_index INTEGER NOT NULL,
		effect_index INTEGER NOT NULL,
		cause_text TEXT,
		effect_text TEXT,
		claimed INTEGER NOT NULL,
		strength_bridge REAL NOT NULL,
		strength_internal REAL NOT NULL,
		mass REAL NOT NULL,
		mass_boost REAL NOT NULL,
		span_start INTEGER NOT NULL,
		span_end INTEGER NOT NULL,
		center_index INTEGER NOT NULL,
		context_lines TEXT,
		members TEXT,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run_seq ON nodes(run_id, seq);

	CREATE TABLE IF NOT EXISTS context_edges (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		singleton_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		strength REAL NOT NULL,
		distance REAL NOT NULL,
		lexical REAL NOT NULL,
		round INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS singletons (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		anchor_index INTEGER NOT NULL,
		text TEXT,
		mass REAL NOT NULL,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS round_metrics (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		pairs INTEGER NOT NULL,
		absorptions INTEGER NOT NULL,
		new_composites INTEGER NOT NULL,
		strength_min REAL NOT NULL,
		strength_median REAL NOT NULL,
		strength_p90 REAL NOT NULL,
		strength_max REAL NOT NULL,
		PRIMARY KEY (run_id, round),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS lines (
		run_id TEXT NOT NULL,
		line_index INTEGER NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		ts DATETIME,
		eligible INTEGER NOT NULL DEFAULT 1,
		embedding TEXT,
		PRIMARY KEY (run_id, line_index),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS traces (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		round INTEGER NOT NULL,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		candidates TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Migrate: add profile column for archives created before profiles existed
	_, _ = s.db.Exec(`ALTER TABLE runs ADD COLUMN profile TEXT`)
	// Migrate: add embedding column for archives created before line search
	_, _ = s.db.Exec(`ALTER TABLE lines ADD COLUMN embedding TEXT`)

	return nil
}

// =============================================================================
// Saving runs
// =============================================================================

// Save archives a run, replacing any previous run of the same session with
// the same parameter hash. Lines are stored alongside the result so audit
// and trace rendering never need the original session file.
func (s *Store) Save(ctx context.Context, session, profileName string, res *causal.Result, lines []transcript.Line, mask transcript.Mask) (*RunInfo, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}

	id := RunID(session, res.Provenance.ParamsHash)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Replace semantics: clear any previous snapshot of this run first
	for _, table := range []string{"traces", "lines", "round_metrics", "singletons", "context_edges", "nodes", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, session, kernel_version, params_hash, params_json, profile, rounds, node_count, edge_count, unabsorbed_count, line_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, session, res.Provenance.KernelVersion, res.Provenance.ParamsHash, res.Provenance.Parameters,
		profileName, len(res.Rounds), len(res.Nodes), len(res.Edges), len(res.Unabsorbed), len(lines), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for i, n := range res.Nodes {
		ctxJSON, _ := json.Marshal(n.ContextLines)
		membersJSON, _ := json.Marshal(n.Members)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (run_id, seq, id, level, kind, cause_index, effect_index, cause_text, effect_text, claimed, strength_bridge, strength_internal, mass, mass_boost, span_start, span_end, center_index, context_lines, members)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, n.ID, n.Level, string(n.Kind), n.CauseIndex, n.EffectIndex, n.CauseText, n.EffectText,
			n.Claimed, n.StrengthBridge, n.StrengthInternal, n.Mass, n.MassBoost,
			n.SpanStart, n.SpanEnd, n.CenterIndex, string(ctxJSON), string(membersJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	for i, e := range res.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO context_edges (run_id, seq, singleton_id, node_id, strength, distance, lexical, round)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, e.SingletonID, e.NodeID, e.Strength, e.Distance, e.Lexical, e.Round)
		if err != nil {
			return nil, fmt.Errorf("failed to insert context edge: %w", err)
		}
	}

	for i, sg := range res.Unabsorbed {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO singletons (run_id, seq, id, kind, anchor_index, text, mass)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, sg.ID, string(sg.Kind), sg.AnchorIndex, sg.Text, sg.Mass)
		if err != nil {
			return nil, fmt.Errorf("failed to insert singleton %s: %w", sg.ID, err)
		}
	}

	for _, r := range res.Rounds {
		m := r.Metrics
		_, err = tx.ExecContext(ctx, `
			INSERT INTO round_metrics (run_id, round, nodes, pairs, absorptions, new_composites, strength_min, strength_median, strength_p90, strength_max)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, r.Number, m.Nodes, m.Pairs, m.Absorptions, r.NewComposites,
			m.StrengthMin, m.StrengthMedian, m.StrengthP90, m.StrengthMax)
		if err != nil {
			return nil, fmt.Errorf("failed to insert round metrics: %w", err)
		}
	}

	embeddings := make([][]float32, len(lines))
	for i, ln := range lines {
		embeddings[i] = s.embedder.Embed(ln.Content)
		embJSON, _ := json.Marshal(embeddings[i])
		var ts interface{}
		if !ln.Timestamp.IsZero() {
			ts = ln.Timestamp.UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO lines (run_id, line_index, author, content, ts, eligible, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, ln.Index, ln.Author, ln.Content, ts, eligibleAt(mask, lines, i), string(embJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to insert line %d: %w", ln.Index, err)
		}
	}

	for i, tr := range res.Traces {
		candJSON, _ := json.Marshal(tr.Candidates)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO traces (run_id, seq, round, kind, subject, candidates)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, tr.Round, tr.Kind, tr.Subject, string(candJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to insert trace: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	// Index line embeddings outside the transaction; vec0 tables are not
	// transactional with the rest of the schema.
	for i, ln := range lines {
		s.vecIdx.Insert(lineKey(id, ln.Index), embeddings[i])
	}

	return &RunInfo{
		ID:            id,
		Session:       session,
		KernelVersion: res.Provenance.KernelVersion,
		ParamsHash:    res.Provenance.ParamsHash,
		Profile:       profileName,
		Rounds:        len(res.Rounds),
		Nodes:         len(res.Nodes),
		Edges:         len(res.Edges),
		Unabsorbed:    len(res.Unabsorbed),
		Lines:         len(lines),
		CreatedAt:     now,
	}, nil
}

func eligibleAt(mask transcript.Mask, lines []transcript.Line, i int) bool {
	if len(mask.Eligible) != len(lines) {
		return true
	}
	return mask.Eligible[i]
}

// =============================================================================
// Loading runs
// =============================================================================

// GetRun loads a run by exact ID. Returns (nil, nil) when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session, kernel_version, params_hash, params_json, COALESCE(profile, ''), rounds, node_count, edge_count, unabsorbed_count, line_count, created_at
		FROM runs WHERE id = ?
	`, id)

	var run Run
	var paramsJSON string
	err := row.Scan(&run.Info.ID, &run.Info.Session, &run.Info.KernelVersion, &run.Info.ParamsHash,
		&paramsJSON, &run.Info.Profile, &run.Info.Rounds, &run.Info.Nodes, &run.Info.Edges,
		&run.Info.Unabsorbed, &run.Info.Lines, &run.Info.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to parse stored params: %w", err)
	}

	if err := s.loadNodes(ctx, &run); err != nil {
		return nil, err
	}
	if err := s.loadEdges(ctx, &run); err != nil {
		return nil, err
	}
	if err := s.loadSingletons(ctx, &run); err != nil {
		return nil, err
	}
	if err := s.loadMetrics(ctx, &run); err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, &run); err != nil {
		return nil, err
	}
	if err := s.loadTraces(ctx, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *Store) loadNodes(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, kind, cause_index, effect_index, cause_text, effect_text, claimed, strength_bridge, strength_internal, mass, mass_boost, span_start, span_end, center_index, context_lines, members
		FROM nodes WHERE run_id = ? ORDER BY seq
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n causal.Node
		var kind, ctxJSON, membersJSON string
		var causeText, effectText sql.NullString
		if err := rows.Scan(&n.ID, &n.Level, &kind, &n.CauseIndex, &n.EffectIndex, &causeText, &effectText,
			&n.Claimed, &n.StrengthBridge, &n.StrengthInternal, &n.Mass, &n.MassBoost,
			&n.SpanStart, &n.SpanEnd, &n.CenterIndex, &ctxJSON, &membersJSON); err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}
		n.Kind = causal.NodeKind(kind)
		n.CauseText = causeText.String
		n.EffectText = effectText.String
		json.Unmarshal([]byte(ctxJSON), &n.ContextLines)
		json.Unmarshal([]byte(membersJSON), &n.Members)
		run.Nodes = append(run.Nodes, n)
	}
	return rows.Err()
}

func (s *Store) loadEdges(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT singleton_id, node_id, strength, distance, lexical, round
		FROM context_edges WHERE run_id = ? ORDER BY seq
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load context edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e causal.ContextEdge
		if err := rows.Scan(&e.SingletonID, &e.NodeID, &e.Strength, &e.Distance, &e.Lexical, &e.Round); err != nil {
			return fmt.Errorf("failed to scan context edge: %w", err)
		}
		run.Edges = append(run.Edges, e)
	}
	return rows.Err()
}

func (s *Store) loadSingletons(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, anchor_index, text, mass
		FROM singletons WHERE run_id = ? ORDER BY seq
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load singletons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sg causal.Singleton
		var kind string
		var text sql.NullString
		if err := rows.Scan(&sg.ID, &kind, &sg.AnchorIndex, &text, &sg.Mass); err != nil {
			return fmt.Errorf("failed to scan singleton: %w", err)
		}
		sg.Kind = causal.SingletonKind(kind)
		sg.Text = text.String
		run.Unabsorbed = append(run.Unabsorbed, sg)
	}
	return rows.Err()
}

func (s *Store) loadMetrics(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nodes, pairs, absorptions, strength_min, strength_median, strength_p90, strength_max
		FROM round_metrics WHERE run_id = ? ORDER BY round
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load round metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m causal.Metrics
		if err := rows.Scan(&m.Nodes, &m.Pairs, &m.Absorptions,
			&m.StrengthMin, &m.StrengthMedian, &m.StrengthP90, &m.StrengthMax); err != nil {
			return fmt.Errorf("failed to scan round metrics: %w", err)
		}
		run.Metrics = append(run.Metrics, m)
	}
	return rows.Err()
}

func (s *Store) loadLines(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_index, author, content, ts, eligible
		FROM lines WHERE run_id = ? ORDER BY line_index
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ln transcript.Line
		var ts sql.NullTime
		var eligible bool
		if err := rows.Scan(&ln.Index, &ln.Author, &ln.Content, &ts, &eligible); err != nil {
			return fmt.Errorf("failed to scan line: %w", err)
		}
		if ts.Valid {
			ln.Timestamp = ts.Time
		}
		run.Lines = append(run.Lines, ln)
		run.Eligible = append(run.Eligible, eligible)
	}
	return rows.Err()
}

func (s *Store) loadTraces(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, kind, subject, candidates
		FROM traces WHERE run_id = ? ORDER BY seq
	`, run.Info.ID)
	if err != nil {
		return fmt.Errorf("failed to load traces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr causal.Trace
		var candJSON string
		if err := rows.Scan(&tr.Round, &tr.Kind, &tr.Subject, &candJSON); err != nil {
			return fmt.Errorf("failed to scan trace: %w", err)
		}
		json.Unmarshal([]byte(candJSON), &tr.Candidates)
		run.Traces = append(run.Traces, tr)
	}
	return rows.Err()
}

// Resolve finds a run by exact ID, unique ID prefix, or session name (the
// most recent run of that session). Returns (nil, nil) when nothing matches.
func (s *Store) Resolve(ctx context.Context, ref string) (*Run, error) {
	if ref == "" {
		return nil, nil
	}

	run, err := s.GetRun(ctx, ref)
	if err != nil || run != nil {
		return run, err
	}

	// Unique ID prefix
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id LIKE ? ORDER BY id LIMIT 2`, ref+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if len(ids) == 1 {
		return s.GetRun(ctx, ids[0])
	}
	if len(ids) > 1 {
		return nil, fmt.Errorf("ambiguous run reference %q", ref)
	}

	// Latest run for a session name
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE session = ? ORDER BY created_at DESC, id LIMIT 1`, ref).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// ListRuns returns archived run summaries, newest first. An empty session
// matches all sessions; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, session string, limit int) ([]RunInfo, error) {
	sqlQuery := `SELECT id, session, kernel_version, params_hash, COALESCE(profile, ''), rounds, node_count, edge_count, unabsorbed_count, line_count, created_at FROM runs`
	args := []interface{}{}

	if session != "" {
		sqlQuery += ` WHERE session = ?`
		args = append(args, session)
	}

	sqlQuery += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var infos []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.ID, &info.Session, &info.KernelVersion, &info.ParamsHash, &info.Profile,
			&info.Rounds, &info.Nodes, &info.Edges, &info.Unabsorbed, &info.Lines, &info.CreatedAt); err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// =============================================================================
// Deleting runs
// =============================================================================

// DeleteRun removes a run and all its rows from the archive.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	// Collect line keys before the rows go away
	var keys []string
	rows, err := s.db.QueryContext(ctx, `SELECT line_index FROM lines WHERE run_id = ?`, id)
	if err == nil {
		for rows.Next() {
			var idx int
			if err := rows.Scan(&idx); err == nil {
				keys = append(keys, lineKey(id, idx))
			}
		}
		rows.Close()
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	for _, table := range []string{"nodes", "context_edges", "singletons", "round_metrics", "lines", "traces"} {
		s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id)
	}
	for _, key := range keys {
		s.vecIdx.Delete(key)
	}

	return nil
}

// Prune keeps the newest keep runs per session and deletes the rest,
// returning the deleted run IDs.
func (s *Store) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session FROM runs ORDER BY session, created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for prune: %w", err)
	}

	var doomed []string
	counts := make(map[string]int)
	for rows.Next() {
		var id, session string
		if err := rows.Scan(&id, &session); err != nil {
			continue
		}
		counts[session]++
		if counts[session] > keep {
			doomed = append(doomed, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(doomed)
	for _, id := range doomed {
		if err := s.DeleteRun(ctx, id); err != nil {
			return nil, err
		}
	}
	return doomed, nil
}

// =============================================================================
// Line search
// =============================================================================

// VectorSearchAvailable reports whether the sqlite-vec KNN index is
// active. Search works either way; without the extension it falls back
// to a brute-force cosine scan.
func (s *Store) VectorSearchAvailable() bool {
	return s.vecIdx != nil && s.vecIdx.available
}

// SearchLines finds archived lines most similar to the query, across all
// sessions. Uses the sqlite-vec KNN index when available, brute-force
// cosine otherwise.
func (s *Store) SearchLines(ctx context.Context, query string, limit int) ([]LineHit, error) {
	if limit <= 0 {
		limit = 10
	}
	queryEmbedding := s.embedder.Embed(query)

	if s.vecIdx != nil && s.vecIdx.available {
		hits, err := s.searchWithVecIndex(ctx, queryEmbedding, limit)
		if err == nil {
			return hits, nil
		}
		// Fall through to linear scan on vec index errors
	}
	return s.searchLinearScan(ctx, queryEmbedding, limit)
}

func (s *Store) searchWithVecIndex(ctx context.Context, queryEmbedding []float32, limit int) ([]LineHit, error) {
	results, err := s.vecIdx.Search(queryEmbedding, limit)
	if err != nil {
		return nil, err
	}

	var hits []LineHit
	for _, r := range results {
		runID, index, ok := splitLineKey(r.LineKey)
		if !ok {
			continue
		}
		var hit LineHit
		err := s.db.QueryRowContext(ctx, `
			SELECT l.run_id, r.session, l.line_index, l.author, l.content
			FROM lines l JOIN runs r ON r.id = l.run_id
			WHERE l.run_id = ? AND l.line_index = ?
		`, runID, index).Scan(&hit.RunID, &hit.Session, &hit.LineIndex, &hit.Author, &hit.Content)
		if err != nil {
			continue // Stale index entry
		}
		hit.Score = 1.0 - r.Distance
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) searchLinearScan(ctx context.Context, queryEmbedding []float32, limit int) ([]LineHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.run_id, r.session, l.line_index, l.author, l.content, l.embedding
		FROM lines l JOIN runs r ON r.id = l.run_id
		WHERE l.embedding IS NOT NULL AND l.embedding != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lines: %w", err)
	}
	defer rows.Close()

	var hits []LineHit
	for rows.Next() {
		var hit LineHit
		var embJSON string
		if err := rows.Scan(&hit.RunID, &hit.Session, &hit.LineIndex, &hit.Author, &hit.Content, &embJSON); err != nil {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
			continue
		}
		hit.Score = cosineSimilarity(queryEmbedding, embedding)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].RunID != hits[j].RunID {
			return hits[i].RunID < hits[j].RunID
		}
		return hits[i].LineIndex < hits[j].LineIndex
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// =============================================================================
// Archive stats
// =============================================================================

// Count returns the total number of archived runs
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// Size returns the database file size as a human-readable string
func (s *Store) Size() (string, error) {
	dbPath := filepath.Join(s.dataDir, "runs.db")
	info, err := os.Stat(dbPath)
	if err != nil {
		return "unknown", err
	}

	size := info.Size()
	if size < 1024 {
		return fmt.Sprintf("%d B", size), nil
	} else if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024), nil
	} else {
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024)), nil
	}
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Helper functions
// =============================================================================

// RunID derives the deterministic archive key for a session analyzed with a
// given parameter hash.
func RunID(session, paramsHash string) string {
	sum := sha256.Sum256([]byte(session + "\n" + paramsHash))
	return hex.EncodeToString(sum[:8])
}

// lineKey names one archived line in the vec index.
func lineKey(runID string, index int) string {
	return fmt.Sprintf("%s:%d", runID, index)
}

func splitLineKey(key string) (runID string, index int, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			n, err := strconv.Atoi(key[i+1:])
			if err != nil {
				return "", 0, false
			}
			return key[:i], n, true
		}
	}
	return "", 0, false
}
