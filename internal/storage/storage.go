package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for coregistration runs.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coreg_runs (
            id TEXT PRIMARY KEY,
            run_type TEXT NOT NULL,
            status TEXT NOT NULL,
            session_dir TEXT,
            roi_id TEXT,
            engine TEXT,
            settings_json TEXT,
            total_scenes INTEGER DEFAULT 0,
            passed_scenes INTEGER DEFAULT 0,
            failed_scenes INTEGER DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS run_scenes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            filename TEXT NOT NULL,
            satellite TEXT,
            success BOOLEAN DEFAULT FALSE,
            filter_passed BOOLEAN DEFAULT FALSE,
            failure_reason TEXT,
            shift_x REAL,
            shift_y REAL,
            shift_x_meters REAL,
            shift_y_meters REAL,
            shift_reliability REAL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_run_scenes_run_id ON run_scenes(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_scenes_satellite ON run_scenes(satellite);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures one persisted coregistration run.
type RunRecord struct {
	ID           string
	RunType      string
	Status       string
	SessionDir   string
	ROIID        string
	Engine       string
	SettingsJSON string
	TotalScenes  int
	PassedScenes int
	FailedScenes int
	Error        string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// SceneRecord captures one scene's verdict within a run.
type SceneRecord struct {
	RunID            string
	Filename         string
	Satellite        string
	Success          bool
	FilterPassed     bool
	FailureReason    string
	ShiftX           *float64
	ShiftY           *float64
	ShiftXMeters     *float64
	ShiftYMeters     *float64
	ShiftReliability *float64
}

// RecordRunQueued inserts a pending run.
func (s *Store) RecordRunQueued(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO coreg_runs (id, run_type, status, session_dir, roi_id, engine, settings_json) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.RunType, rec.Status, rec.SessionDir, rec.ROIID, rec.Engine, rec.SettingsJSON)
	return err
}

// RecordRunStart marks a run as running.
func (s *Store) RecordRunStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE coreg_runs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordRunResult finalizes a run with its status and scene counts.
func (s *Store) RecordRunResult(id, status string, total, passed, failed int, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE coreg_runs SET status=?, total_scenes=?, passed_scenes=?, failed_scenes=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`,
		status, total, passed, failed, errMsg, id)
	return err
}

// RecordScene persists one scene verdict.
func (s *Store) RecordScene(rec SceneRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO run_scenes (run_id, filename, satellite, success, filter_passed, failure_reason, shift_x, shift_y, shift_x_meters, shift_y_meters, shift_reliability)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.RunID, rec.Filename, rec.Satellite, rec.Success, rec.FilterPassed, rec.FailureReason,
		nullFloat(rec.ShiftX), nullFloat(rec.ShiftY), nullFloat(rec.ShiftXMeters), nullFloat(rec.ShiftYMeters), nullFloat(rec.ShiftReliability))
	return err
}

// RecentRuns returns the latest runs up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, run_type, status, session_dir, roi_id, engine, settings_json, total_scenes, passed_scenes, failed_scenes, created_at, started_at, completed_at, error_message FROM coreg_runs ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Run fetches one run by ID.
func (s *Store) Run(id string) (RunRecord, error) {
	if s == nil {
		return RunRecord{}, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, run_type, status, session_dir, roi_id, engine, settings_json, total_scenes, passed_scenes, failed_scenes, created_at, started_at, completed_at, error_message FROM coreg_runs WHERE id=?;`, id)
	if err != nil {
		return RunRecord{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return RunRecord{}, err
		}
		return RunRecord{}, sql.ErrNoRows
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (RunRecord, error) {
	var rec RunRecord
	var created time.Time
	var started, completed sql.NullTime
	var errorMsg sql.NullString
	if err := rows.Scan(&rec.ID, &rec.RunType, &rec.Status, &rec.SessionDir, &rec.ROIID, &rec.Engine, &rec.SettingsJSON,
		&rec.TotalScenes, &rec.PassedScenes, &rec.FailedScenes, &created, &started, &completed, &errorMsg); err != nil {
		return RunRecord{}, err
	}
	rec.CreatedAt = created
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	if errorMsg.Valid {
		rec.Error = errorMsg.String
	}
	return rec, nil
}

// RunScenes returns the scene verdicts of a run in insertion order.
func (s *Store) RunScenes(runID string) ([]SceneRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT run_id, filename, satellite, success, filter_passed, failure_reason, shift_x, shift_y, shift_x_meters, shift_y_meters, shift_reliability FROM run_scenes WHERE run_id=? ORDER BY id;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []SceneRecord
	for rows.Next() {
		var rec SceneRecord
		var reason sql.NullString
		var sx, sy, sxm, sym, rel sql.NullFloat64
		if err := rows.Scan(&rec.RunID, &rec.Filename, &rec.Satellite, &rec.Success, &rec.FilterPassed, &reason, &sx, &sy, &sxm, &sym, &rel); err != nil {
			return nil, err
		}
		if reason.Valid {
			rec.FailureReason = reason.String
		}
		rec.ShiftX = floatPtr(sx)
		rec.ShiftY = floatPtr(sy)
		rec.ShiftXMeters = floatPtr(sxm)
		rec.ShiftYMeters = floatPtr(sym)
		rec.ShiftReliability = floatPtr(rel)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
