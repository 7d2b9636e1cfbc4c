// Package sqlite provides SQLite-backed interview persistence.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/caliperhq/caliper/internal/platform/storage/sqlitemigrate"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
	"github.com/caliperhq/caliper/internal/services/interview/storage"
	"github.com/caliperhq/caliper/internal/services/interview/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed session, response, and revocation persistence.
type Store struct {
	sqlDB *sql.DB
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	restored := fromMillis(value.Int64)
	return &restored
}

// Open opens an interview SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const putSessionSQL = `
INSERT INTO interview_sessions (
	id, candidate_id, recruiter_id, job_role, technologies,
	status, end_reason, theta, standard_error, information,
	min_questions, max_questions, asked_question_ids, current_question_id,
	room_url, scheduled_start_at, actual_start_at, ended_at, paused_at,
	faulted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	candidate_id = excluded.candidate_id,
	recruiter_id = excluded.recruiter_id,
	job_role = excluded.job_role,
	technologies = excluded.technologies,
	status = excluded.status,
	end_reason = excluded.end_reason,
	theta = excluded.theta,
	standard_error = excluded.standard_error,
	information = excluded.information,
	min_questions = excluded.min_questions,
	max_questions = excluded.max_questions,
	asked_question_ids = excluded.asked_question_ids,
	current_question_id = excluded.current_question_id,
	room_url = excluded.room_url,
	scheduled_start_at = excluded.scheduled_start_at,
	actual_start_at = excluded.actual_start_at,
	ended_at = excluded.ended_at,
	paused_at = excluded.paused_at,
	faulted_at = excluded.faulted_at,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at;
`

const selectSessionSQL = `
SELECT id, candidate_id, recruiter_id, job_role, technologies,
	status, end_reason, theta, standard_error, information,
	min_questions, max_questions, asked_question_ids, current_question_id,
	room_url, scheduled_start_at, actual_start_at, ended_at, paused_at,
	faulted_at, created_at, updated_at
FROM interview_sessions
`

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutSession inserts or replaces a session record.
func (s *Store) PutSession(ctx context.Context, record session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return putSession(ctx, s.sqlDB, record)
}

func putSession(ctx context.Context, db execContexter, record session.Session) error {
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("session id is required")
	}
	technologies, err := json.Marshal(record.Technologies)
	if err != nil {
		return fmt.Errorf("marshal technologies: %w", err)
	}
	askedIDs, err := json.Marshal(record.AskedQuestionIDs)
	if err != nil {
		return fmt.Errorf("marshal asked question ids: %w", err)
	}

	_, err = db.ExecContext(ctx, putSessionSQL,
		record.ID,
		record.CandidateID,
		record.RecruiterID,
		record.JobRole,
		string(technologies),
		record.Status.Label(),
		record.EndReason.Label(),
		record.Theta,
		record.StandardError,
		record.Information,
		record.MinQuestions,
		record.MaxQuestions,
		string(askedIDs),
		record.CurrentQuestionID,
		record.RoomURL,
		toMillis(record.ScheduledStartAt),
		toNullMillis(record.ActualStartAt),
		toNullMillis(record.EndedAt),
		toNullMillis(record.PausedAt),
		toNullMillis(record.FaultedAt),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return session.Session{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectSessionSQL+"WHERE id = ?;", sessionID)
	record, err := scanSession(row)
	if err == sql.ErrNoRows {
		return session.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (session.Session, error) {
	var (
		record           session.Session
		technologies     string
		statusLabel      string
		endReasonLabel   string
		askedIDs         string
		scheduledStartAt int64
		actualStartAt    sql.NullInt64
		endedAt          sql.NullInt64
		pausedAt         sql.NullInt64
		faultedAt        sql.NullInt64
		createdAt        int64
		updatedAt        int64
	)
	err := row.Scan(
		&record.ID,
		&record.CandidateID,
		&record.RecruiterID,
		&record.JobRole,
		&technologies,
		&statusLabel,
		&endReasonLabel,
		&record.Theta,
		&record.StandardError,
		&record.Information,
		&record.MinQuestions,
		&record.MaxQuestions,
		&askedIDs,
		&record.CurrentQuestionID,
		&record.RoomURL,
		&scheduledStartAt,
		&actualStartAt,
		&endedAt,
		&pausedAt,
		&faultedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return session.Session{}, err
	}

	status, err := session.StatusFromLabel(statusLabel)
	if err != nil {
		return session.Session{}, fmt.Errorf("parse session status: %w", err)
	}
	record.Status = status
	record.EndReason = session.EndReasonFromLabel(endReasonLabel)

	if err := json.Unmarshal([]byte(technologies), &record.Technologies); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal technologies: %w", err)
	}
	if err := json.Unmarshal([]byte(askedIDs), &record.AskedQuestionIDs); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal asked question ids: %w", err)
	}

	record.ScheduledStartAt = fromMillis(scheduledStartAt)
	record.ActualStartAt = fromNullMillis(actualStartAt)
	record.EndedAt = fromNullMillis(endedAt)
	record.PausedAt = fromNullMillis(pausedAt)
	record.FaultedAt = fromNullMillis(faultedAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// SaveResponse persists the updated session and the new response atomically.
func (s *Store) SaveResponse(ctx context.Context, record session.Session, response storage.ResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	response.SessionID = strings.TrimSpace(response.SessionID)
	response.QuestionID = strings.TrimSpace(response.QuestionID)
	if response.SessionID == "" || response.SessionID != record.ID {
		return fmt.Errorf("response session id must match session")
	}
	if response.QuestionID == "" {
		return fmt.Errorf("response question id is required")
	}
	if response.Position <= 0 {
		return fmt.Errorf("response position must be positive")
	}
	if response.AnsweredAt.IsZero() {
		response.AnsweredAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putSession(ctx, tx, record); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO session_responses (
	session_id, position, question_id, score, theta_after,
	standard_error_after, answered_at
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
		response.SessionID,
		response.Position,
		response.QuestionID,
		response.Score,
		response.ThetaAfter,
		response.StandardErrorAfter,
		toMillis(response.AnsweredAt),
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListResponses returns a session's responses in answer order.
func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]storage.ResponseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, position, question_id, score, theta_after,
	standard_error_after, answered_at
FROM session_responses
WHERE session_id = ?
ORDER BY position ASC;
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var responses []storage.ResponseRecord
	for rows.Next() {
		var (
			response   storage.ResponseRecord
			answeredAt int64
		)
		if err := rows.Scan(
			&response.SessionID,
			&response.Position,
			&response.QuestionID,
			&response.Score,
			&response.ThetaAfter,
			&response.StandardErrorAfter,
			&answeredAt,
		); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		response.AnsweredAt = fromMillis(answeredAt)
		responses = append(responses, response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return responses, nil
}

// ListExpiryCandidates returns sessions eligible for a timeout check,
// oldest updates first.
func (s *Store) ListExpiryCandidates(ctx context.Context, limit int) ([]session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectSessionSQL+`
WHERE status IN (?, ?, ?)
ORDER BY updated_at ASC
LIMIT ?;
`,
		session.StatusScheduled.Label(),
		session.StatusPaused.Label(),
		session.StatusTechnicalIssues.Label(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expiry candidates: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// IsSessionRevoked reports whether credentials for the session were revoked.
func (s *Store) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}

	var count int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM revoked_sessions WHERE session_id = ?;
`, sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return count > 0, nil
}

// RevokeSession marks every credential bound to the session as revoked.
// Revoking an already-revoked session is a no-op.
func (s *Store) RevokeSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if revokedAt.IsZero() {
		revokedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO revoked_sessions (session_id, revoked_at)
VALUES (?, ?)
ON CONFLICT (session_id) DO NOTHING;
`, sessionID, toMillis(revokedAt))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
