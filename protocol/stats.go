package protocol

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
)

var errEndBeforeStart = errors.New("end_date must not be before start_date")

// Statistics aggregates stored evaluations matching filter. The average
// completion time is in seconds.
func (e *Engine) Statistics(ctx context.Context, filter databases.AnswerFilter) (*models.ProtocolStats, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, dispatch.NewValidationError(errEndBeforeStart)
	}
	rows, err := e.store.Answers.Find(ctx, filter)
	if err != nil {
		return nil, dispatch.Classify(ctx, "load protocol statistics", err)
	}
	return summarize(rows), nil
}

func summarize(rows []models.CallProtocolAnswer) *models.ProtocolStats {
	stats := &models.ProtocolStats{
		TotalProtocols:       len(rows),
		PriorityDistribution: map[string]int{},
		MostCommonAnswers:    map[string]map[string]int{},
	}

	var total time.Duration
	for _, row := range rows {
		if !row.StartedAt.IsZero() && row.CompletedAt.After(row.StartedAt) {
			total += row.CompletedAt.Sub(row.StartedAt)
		}
		stats.PriorityDistribution[strconv.Itoa(row.CalculatedPriority)]++
		for questionID, v := range row.Answers {
			counts := stats.MostCommonAnswers[questionID]
			if counts == nil {
				counts = map[string]int{}
				stats.MostCommonAnswers[questionID] = counts
			}
			counts[answerText(v)]++
		}
	}
	if len(rows) > 0 {
		stats.AverageCompletionTime = total.Seconds() / float64(len(rows))
	}
	return stats
}
