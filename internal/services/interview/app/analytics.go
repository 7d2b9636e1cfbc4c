package app

import (
	"context"

	"github.com/montanaflynn/stats"

	"github.com/caliperhq/caliper/internal/services/interview/domain/credential"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
)

// Analytics summarizes a session's response history for recruiters.
type Analytics struct {
	SessionID     string
	Status        session.Status
	EndReason     session.EndReason
	Theta         float64
	StandardError float64
	Responses     int

	// Score distribution over answered questions.
	MeanScore   float64
	MedianScore float64
	MinScore    float64
	MaxScore    float64
	ScoreStdDev float64

	// StandardErrorTrajectory traces the estimate precision per response.
	StandardErrorTrajectory []float64
}

// GetAnalytics computes response statistics for a session. Recruiter-only.
func (s *Service) GetAnalytics(ctx context.Context, sessionID, token string) (Analytics, error) {
	if _, err := s.authorize(ctx, token, sessionID, credential.OperationGetAnalytics); err != nil {
		return Analytics{}, err
	}

	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Analytics{}, err
	}
	responses, err := s.sessions.ListResponses(ctx, sessionID)
	if err != nil {
		return Analytics{}, err
	}

	summary := Analytics{
		SessionID:     record.ID,
		Status:        record.Status,
		EndReason:     record.EndReason,
		Theta:         record.Theta,
		StandardError: record.StandardError,
		Responses:     len(responses),
	}
	if len(responses) == 0 {
		return summary, nil
	}

	scores := make(stats.Float64Data, 0, len(responses))
	trajectory := make([]float64, 0, len(responses))
	for _, response := range responses {
		scores = append(scores, response.Score)
		trajectory = append(trajectory, response.StandardErrorAfter)
	}
	summary.StandardErrorTrajectory = trajectory

	// stats only errors on empty input, which is excluded above.
	summary.MeanScore, _ = stats.Mean(scores)
	summary.MedianScore, _ = stats.Median(scores)
	summary.MinScore, _ = stats.Min(scores)
	summary.MaxScore, _ = stats.Max(scores)
	summary.ScoreStdDev, _ = stats.StandardDeviation(scores)

	return summary, nil
}
