// Package db persists served predictions to SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"obesityserve/inference"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    model_version TEXT NOT NULL,
    predicted_class TEXT NOT NULL,
    confidence REAL NOT NULL,
    cached INTEGER NOT NULL DEFAULT 0,
    probabilities TEXT NOT NULL,
    features TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_class ON predictions(predicted_class);
`

// MaxRecent caps RecentPredictions.
const MaxRecent = 500

// Store is the prediction audit log.
type Store struct {
	db *sql.DB
}

// PredictionRecord is one stored prediction.
type PredictionRecord struct {
	ID             int64              `json:"id"`
	RequestID      string             `json:"request_id"`
	ModelVersion   string             `json:"model_version"`
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Cached         bool               `json:"cached"`
	Probabilities  map[string]float64 `json:"all_probabilities"`
	Features       json.RawMessage    `json:"features"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ClassCount is the number of stored predictions of one class.
type ClassCount struct {
	Class string `json:"predicted_class"`
	Count int64  `json:"count"`
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open prediction log: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create prediction schema: %w", err)
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Consume stores the outcome; it makes Store an inference.Sink.
func (s *Store) Consume(ctx context.Context, o inference.Outcome) error {
	_, err := s.SavePrediction(ctx, o)
	return err
}

// SavePrediction inserts one outcome and returns its row id. Outcomes without a
// request id are given a fresh one.
func (s *Store) SavePrediction(ctx context.Context, o inference.Outcome) (int64, error) {
	if o.Prediction.PredictedClass == "" {
		return 0, errors.New("prediction has no class")
	}
	requestID := o.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	createdAt := o.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	probabilities, err := json.Marshal(o.Prediction.AllProbabilities)
	if err != nil {
		return 0, fmt.Errorf("encode probabilities: %w", err)
	}
	features, err := json.Marshal(o.Features)
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, model_version, predicted_class, confidence, cached,
            probabilities, features, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		requestID, o.ModelVersion, o.Prediction.PredictedClass, o.Prediction.Confidence,
		o.Cached, string(probabilities), string(features), createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return res.LastInsertId()
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		return []PredictionRecord{}, nil
	}
	limit = min(limit, MaxRecent)

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, model_version, predicted_class, confidence, cached,
               probabilities, features, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var (
			rec           PredictionRecord
			probabilities string
			features      string
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.ModelVersion, &rec.PredictedClass,
			&rec.Confidence, &rec.Cached, &probabilities, &features, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(probabilities), &rec.Probabilities); err != nil {
			return nil, fmt.Errorf("decode probabilities of prediction %d: %w", rec.ID, err)
		}
		rec.Features = json.RawMessage(features)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClassCounts returns the number of predictions per class, most frequent first.
func (s *Store) ClassCounts(ctx context.Context) ([]ClassCount, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT predicted_class, COUNT(*)
        FROM predictions
        GROUP BY predicted_class
        ORDER BY COUNT(*) DESC, predicted_class`)
	if err != nil {
		return nil, fmt.Errorf("count predictions: %w", err)
	}
	defer rows.Close()

	counts := make([]ClassCount, 0)
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.Class, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
