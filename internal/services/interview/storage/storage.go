// Package storage defines the persistence interfaces for interview state.
package storage

import (
	"context"
	"time"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ResponseRecord is one scored answer within a session.
type ResponseRecord struct {
	SessionID string
	// Position is the 1-based order of the answer within the session.
	Position   int
	QuestionID string
	Score      float64
	// ThetaAfter and StandardErrorAfter snapshot the estimate right after
	// this response was folded in.
	ThetaAfter         float64
	StandardErrorAfter float64
	AnsweredAt         time.Time
}

// SessionStore persists interview sessions and their responses.
type SessionStore interface {
	// PutSession inserts or replaces a session record.
	PutSession(ctx context.Context, s session.Session) error
	// GetSession loads one session; ErrNotFound if absent.
	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	// SaveResponse persists the updated session and the new response in one
	// transaction so a response is never visible without its state advance.
	SaveResponse(ctx context.Context, s session.Session, response ResponseRecord) error
	// ListResponses returns a session's responses in answer order.
	ListResponses(ctx context.Context, sessionID string) ([]ResponseRecord, error)
	// ListExpiryCandidates returns sessions in a status with a timeout
	// window attached, oldest first.
	ListExpiryCandidates(ctx context.Context, limit int) ([]session.Session, error)
}

// RevocationStore records sessions whose credentials were revoked.
type RevocationStore interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
	RevokeSession(ctx context.Context, sessionID string, revokedAt time.Time) error
}
