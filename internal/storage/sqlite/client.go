package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/storage/models"
	"github.com/moodlens/backend/pkg/logger"
)

// Client wraps the application database. The insights engine only reads
// from it; the ingestion endpoints (webcam pipeline results, manual HR
// entries) write through SaveRecord.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		subject_id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT UNIQUE,
		department TEXT,
		role TEXT NOT NULL DEFAULT 'employee',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subjects_department ON subjects(department);

	CREATE TABLE IF NOT EXISTS mood_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		emotion TEXT NOT NULL,
		confidence REAL,
		source TEXT NOT NULL DEFAULT 'automatic-detection',
		notes TEXT,
		observed_at INTEGER NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(subject_id)
	);
	CREATE INDEX IF NOT EXISTS idx_mood_subject ON mood_records(subject_id);
	CREATE INDEX IF NOT EXISTS idx_mood_observed ON mood_records(observed_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ListRecords returns mood records joined with subject identity, newest
// first. An empty subjectID returns records for all subjects. Every call
// re-reads the table, so externally deleted rows simply disappear from
// the next snapshot.
func (c *Client) ListRecords(ctx context.Context, subjectID string, limit int) ([]models.MoodRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT mr.id, mr.subject_id, COALESCE(s.full_name, mr.subject_id),
			COALESCE(s.department, ''), mr.emotion, mr.confidence,
			mr.source, COALESCE(mr.notes, ''), mr.observed_at
		FROM mood_records mr
		LEFT JOIN subjects s ON mr.subject_id = s.subject_id
	`
	args := []interface{}{}
	if subjectID != "" {
		query += " WHERE mr.subject_id = ?"
		args = append(args, subjectID)
	}
	query += " ORDER BY mr.observed_at DESC, mr.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mood records: %w", err)
	}
	defer rows.Close()

	var records []models.MoodRecord
	for rows.Next() {
		var r models.MoodRecord
		var confidence sql.NullFloat64
		var observedAt int64

		err := rows.Scan(&r.ID, &r.SubjectID, &r.SubjectName, &r.Department,
			&r.Emotion, &confidence, &r.Source, &r.Notes, &observedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mood record: %w", err)
		}

		if confidence.Valid {
			v := confidence.Float64
			r.Confidence = &v
		}
		r.ObservedAt = time.Unix(observedAt, 0).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mood records: %w", err)
	}

	return records, nil
}

// SaveRecord persists a new mood record. ObservedAt defaults to now when
// unset; backfilled records may carry any timestamp.
func (c *Client) SaveRecord(ctx context.Context, r *models.MoodRecord) error {
	if r.ObservedAt.IsZero() {
		r.ObservedAt = time.Now().UTC()
	}
	if r.Source == "" {
		r.Source = models.SourceAutomatic
	}

	var confidence interface{}
	if r.Confidence != nil {
		confidence = *r.Confidence
	}

	// Detection can observe a subject before HR registers them; a minimal
	// subject row keeps the foreign key satisfied until the upsert fills
	// in the rest.
	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subjects (subject_id, full_name, role, created_at)
		VALUES (?, ?, 'employee', ?)
	`, r.SubjectID, r.SubjectID, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to ensure subject: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO mood_records (subject_id, emotion, confidence, source, notes, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SubjectID, r.Emotion, confidence, r.Source, r.Notes, r.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save mood record: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}

	logger.Debug("Mood record saved",
		zap.String("subject_id", r.SubjectID),
		zap.String("emotion", r.Emotion),
		zap.String("source", r.Source),
	)

	return nil
}

// UpsertSubject creates or updates a subject row. Used by the ingestion
// layer so records can resolve names and departments.
func (c *Client) UpsertSubject(ctx context.Context, s *models.Subject) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Role == "" {
		s.Role = "employee"
	}

	// Email is unique; store NULL rather than colliding on empty strings.
	var email interface{}
	if s.Email != "" {
		email = s.Email
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO subjects (subject_id, full_name, email, department, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			department = excluded.department,
			role = excluded.role
	`, s.SubjectID, s.FullName, email, s.Department, s.Role, s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert subject: %w", err)
	}

	return nil
}

func (c *Client) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT subject_id, full_name, COALESCE(email, ''), COALESCE(department, ''), role, created_at
		FROM subjects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		var s models.Subject
		var createdAt int64

		err := rows.Scan(&s.SubjectID, &s.FullName, &s.Email, &s.Department, &s.Role, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}

		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subjects: %w", err)
	}

	return subjects, nil
}
