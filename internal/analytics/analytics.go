// Package analytics derives session progress summaries from stories and
// persisted rounds. All computation is pure; data access stays behind the
// service interfaces.
package analytics

import (
	"math"

	"github.com/mcdev12/pointdeck/internal/models"
)

// StoryProgress summarizes how much of a session's backlog is estimated.
type StoryProgress struct {
	TotalStories         int `json:"totalStories"`
	EstimatedStories     int `json:"estimatedStories"`
	PendingStories       int `json:"pendingStories"`
	CompletionPercentage int `json:"completionPercentage"`
}

// RoundActivity summarizes the voting history of a session.
type RoundActivity struct {
	TotalRounds      int      `json:"totalRounds"`
	RevealedRounds   int      `json:"revealedRounds"`
	AverageConsensus *float64 `json:"averageConsensus,omitempty"`
	RevoteRate       *float64 `json:"revoteRate,omitempty"`
}

// SessionSummary is the full analytics view for one session.
type SessionSummary struct {
	Progress      StoryProgress `json:"progress"`
	Activity      RoundActivity `json:"activity"`
	TotalPoints   *float64      `json:"totalPoints,omitempty"`
	SessionStatus string        `json:"sessionStatus"`
}

// Session status values derived from backlog completion.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ComputeProgress derives backlog completion from the story list.
func ComputeProgress(stories []models.Story) StoryProgress {
	p := StoryProgress{TotalStories: len(stories)}
	for _, s := range stories {
		if s.Status() == models.StoryStatusEstimated {
			p.EstimatedStories++
		}
	}
	p.PendingStories = p.TotalStories - p.EstimatedStories
	if p.TotalStories > 0 {
		p.CompletionPercentage = int(math.Round(float64(p.EstimatedStories) / float64(p.TotalStories) * 100))
	}
	return p
}

// ComputeActivity derives voting history metrics from persisted rounds.
// The revote rate is the share of stories that needed more than one round.
func ComputeActivity(rounds []models.VotingRound) RoundActivity {
	a := RoundActivity{TotalRounds: len(rounds)}
	if len(rounds) == 0 {
		return a
	}

	consensusSum := 0
	consensusCount := 0
	roundsPerStory := make(map[string]int)

	for _, r := range rounds {
		roundsPerStory[r.StoryID.String()]++
		if r.State == models.RoundStateRevealed || r.State == models.RoundStateFinalized {
			a.RevealedRounds++
		}
		if r.ConsensusPercentage != nil {
			consensusSum += *r.ConsensusPercentage
			consensusCount++
		}
	}

	if consensusCount > 0 {
		avg := math.Round(float64(consensusSum)/float64(consensusCount)*100) / 100
		a.AverageConsensus = &avg
	}

	revoted := 0
	for _, n := range roundsPerStory {
		if n > 1 {
			revoted++
		}
	}
	rate := math.Round(float64(revoted)/float64(len(roundsPerStory))*100) / 100
	a.RevoteRate = &rate

	return a
}

// Summarize combines story and round data into the session analytics view.
func Summarize(stories []models.Story, rounds []models.VotingRound) SessionSummary {
	summary := SessionSummary{
		Progress: ComputeProgress(stories),
		Activity: ComputeActivity(rounds),
	}

	var total float64
	hasPoints := false
	for _, s := range stories {
		if s.FinalScore != nil {
			total += *s.FinalScore
			hasPoints = true
		}
	}
	if hasPoints {
		summary.TotalPoints = &total
	}

	switch {
	case summary.Progress.TotalStories == 0 || (summary.Progress.EstimatedStories == 0 && summary.Activity.TotalRounds == 0):
		summary.SessionStatus = StatusNotStarted
	case summary.Progress.PendingStories == 0:
		summary.SessionStatus = StatusCompleted
	default:
		summary.SessionStatus = StatusInProgress
	}

	return summary
}
