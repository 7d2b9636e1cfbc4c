// Package question defines interview question items and the bank interface
// that supplies them.
//
// Question banks are external collaborators: the interview core reads pools
// from them and never mutates bank contents. Item difficulty and
// discrimination parameters are calibrated upstream.
package question

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrEmptyQuestionID indicates a missing question ID.
	ErrEmptyQuestionID = errors.New("question id is required")
	// ErrEmptyContent indicates a missing question prompt.
	ErrEmptyContent = errors.New("question content is required")
	// ErrInvalidDiscrimination indicates a non-positive discrimination parameter.
	ErrInvalidDiscrimination = errors.New("question discrimination must be positive")
)

// Question is a single bank item with its IRT parameters.
type Question struct {
	ID      string
	Content string
	JobRole string
	// Technologies lists the technologies the question exercises.
	Technologies []string
	// Difficulty is the IRT b parameter on the ability scale.
	Difficulty float64
	// Discrimination is the IRT a parameter; must be positive.
	Discrimination float64
}

// Normalize trims and validates a question item.
func Normalize(q Question) (Question, error) {
	q.ID = strings.TrimSpace(q.ID)
	if q.ID == "" {
		return Question{}, ErrEmptyQuestionID
	}
	q.Content = strings.TrimSpace(q.Content)
	if q.Content == "" {
		return Question{}, ErrEmptyContent
	}
	if q.Discrimination <= 0 {
		return Question{}, ErrInvalidDiscrimination
	}
	q.JobRole = strings.TrimSpace(q.JobRole)
	normalized := make([]string, 0, len(q.Technologies))
	for _, tech := range q.Technologies {
		tech = strings.TrimSpace(tech)
		if tech != "" {
			normalized = append(normalized, tech)
		}
	}
	q.Technologies = normalized
	return q, nil
}

// Bank supplies question pools for a job role and technology set.
type Bank interface {
	// Pool returns the eligible questions for the given job role and
	// technologies, in stable order.
	Pool(ctx context.Context, jobRole string, technologies []string) ([]Question, error)
}

// MemoryBank is an in-memory Bank backed by a fixed question list.
type MemoryBank struct {
	questions []Question
}

// NewMemoryBank builds a bank from the provided questions. Items are
// normalized and sorted by id so pools are deterministic.
func NewMemoryBank(questions []Question) (*MemoryBank, error) {
	items := make([]Question, 0, len(questions))
	for _, q := range questions {
		normalized, err := Normalize(q)
		if err != nil {
			return nil, err
		}
		items = append(items, normalized)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &MemoryBank{questions: items}, nil
}

// Pool returns questions matching the job role and at least one technology.
// Empty filters match everything.
func (b *MemoryBank) Pool(ctx context.Context, jobRole string, technologies []string) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jobRole = strings.TrimSpace(jobRole)

	var pool []Question
	for _, q := range b.questions {
		if jobRole != "" && q.JobRole != "" && !strings.EqualFold(q.JobRole, jobRole) {
			continue
		}
		if len(technologies) > 0 && len(q.Technologies) > 0 && !matchesAny(q.Technologies, technologies) {
			continue
		}
		pool = append(pool, q)
	}
	return pool, nil
}

func matchesAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}
