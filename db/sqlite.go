package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"flightdash/pipeline"
	"flightdash/predictor"
)

// DB wraps the sqlite file holding the training log, the prediction audit
// trail and the data quality findings of each load.
type DB struct {
	conn *sql.DB

	stmts    map[string]*sql.Stmt
	stmtLock sync.Mutex
}

// Open opens (creating if needed) the database at path in WAL mode and
// applies the schema.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	d := &DB{conn: conn, stmts: make(map[string]*sql.Stmt)}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            model_name VARCHAR(50) NOT NULL,
            fitted INTEGER NOT NULL,
            metric VARCHAR(20),
            score REAL,
            mae REAL,
            train_rows INTEGER,
            test_rows INTEGER,
            data_points INTEGER,
            skip_reason TEXT,
            trained_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS predictions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            snapshot_id TEXT NOT NULL,
            target VARCHAR(20) NOT NULL,
            features TEXT NOT NULL,
            result TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS data_quality (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source TEXT NOT NULL,
            passenger_id TEXT,
            row_index INTEGER,
            issue_type TEXT NOT NULL,
            severity TEXT NOT NULL,
            message TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_training_run ON training_log(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_target ON predictions(target, created_at)`,
	}
	for _, query := range queries {
		if _, err := d.conn.Exec(query); err != nil {
			return fmt.Errorf("exec query failed: %w", err)
		}
	}
	return nil
}

// Close releases prepared statements and the connection.
func (d *DB) Close() error {
	d.stmtLock.Lock()
	for _, stmt := range d.stmts {
		stmt.Close()
	}
	d.stmts = make(map[string]*sql.Stmt)
	d.stmtLock.Unlock()
	return d.conn.Close()
}

func (d *DB) prepared(query string) (*sql.Stmt, error) {
	d.stmtLock.Lock()
	defer d.stmtLock.Unlock()

	if stmt, ok := d.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := d.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	d.stmts[query] = stmt
	return stmt, nil
}

const insertTrainingLog = `INSERT INTO training_log
    (run_id, model_name, fitted, metric, score, mae, train_rows, test_rows, data_points, skip_reason, trained_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveTrainingReport stores one row per model of a training run.
func (d *DB) SaveTrainingReport(ctx context.Context, runID string, report predictor.TrainingReport) error {
	stmt, err := d.prepared(insertTrainingLog)
	if err != nil {
		return err
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	trainedAt := report.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now()
	}
	for _, target := range predictor.Targets() {
		m := report.Metrics[target]
		dataPoints := report.Rows
		var skip string
		if target == predictor.TargetDelay {
			dataPoints = report.DelayedRows
			skip = report.DelaySkipReason
		}
		_, err := tx.StmtContext(ctx, stmt).ExecContext(ctx,
			runID,
			string(target),
			report.Fitted(target),
			m.Metric,
			m.Score,
			m.MAE,
			m.TrainRows,
			m.TestRows,
			dataPoints,
			skip,
			trainedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert training log: %w", err)
		}
	}
	return tx.Commit()
}

type TrainingLog struct {
	RunID      string    `json:"run_id"`
	ModelName  string    `json:"model_name"`
	Fitted     bool      `json:"fitted"`
	Metric     string    `json:"metric,omitempty"`
	Score      float64   `json:"score"`
	MAE        float64   `json:"mae,omitempty"`
	TrainRows  int       `json:"train_rows"`
	TestRows   int       `json:"test_rows"`
	DataPoints int       `json:"data_points"`
	SkipReason string    `json:"skip_reason,omitempty"`
	TrainedAt  time.Time `json:"trained_at"`
}

// RecentTrainingLogs returns the newest entries first.
func (d *DB) RecentTrainingLogs(ctx context.Context, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx, `
        SELECT run_id, model_name, fitted, metric, score, mae, train_rows, test_rows,
               data_points, skip_reason, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var l TrainingLog
		var metric, skip sql.NullString
		var score, mae sql.NullFloat64
		if err := rows.Scan(&l.RunID, &l.ModelName, &l.Fitted, &metric, &score, &mae,
			&l.TrainRows, &l.TestRows, &l.DataPoints, &skip, &l.TrainedAt); err != nil {
			return nil, err
		}
		l.Metric = metric.String
		l.SkipReason = skip.String
		l.Score = score.Float64
		l.MAE = mae.Float64
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// PredictionLog is one audited prediction.
type PredictionLog struct {
	SnapshotID string
	Target     predictor.Target
	Features   predictor.FeatureRecord
	Result     interface{}
	CreatedAt  time.Time
}

const insertPrediction = `INSERT INTO predictions (snapshot_id, target, features, result, created_at)
    VALUES (?, ?, ?, ?, ?)`

func (d *DB) LogPrediction(ctx context.Context, p PredictionLog) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	result, err := json.Marshal(p.Result)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	stmt, err := d.prepared(insertPrediction)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, p.SnapshotID, string(p.Target), string(features), string(result), p.CreatedAt.UTC())
	return err
}

// CountPredictions returns how many predictions were audited for target.
func (d *DB) CountPredictions(ctx context.Context, target predictor.Target) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE target = ?`, string(target)).Scan(&n)
	return n, err
}

const insertQualityIssue = `INSERT INTO data_quality
    (source, passenger_id, row_index, issue_type, severity, message, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`

// SaveQualityIssues replaces the stored findings of source with those of
// the latest load.
func (d *DB) SaveQualityIssues(ctx context.Context, source string, issues []pipeline.QualityIssue) error {
	stmt, err := d.prepared(insertQualityIssue)
	if err != nil {
		return err
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM data_quality WHERE source = ?`, source); err != nil {
		return fmt.Errorf("clear previous issues: %w", err)
	}

	for _, issue := range issues {
		ts := issue.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		_, err := tx.StmtContext(ctx, stmt).ExecContext(ctx,
			source,
			issue.PassengerID,
			issue.Row,
			issue.Type,
			issue.Severity,
			issue.Message,
			ts.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}
	return tx.Commit()
}

// QualityIssueCounts groups the stored findings of source by issue type.
func (d *DB) QualityIssueCounts(ctx context.Context, source string) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx, `
        SELECT issue_type, COUNT(*) FROM data_quality
        WHERE source = ?
        GROUP BY issue_type`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
