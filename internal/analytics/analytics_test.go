package analytics

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mcdev12/pointdeck/internal/models"
)

func TestComputeProgress(t *testing.T) {
	five := 5.0
	stories := []models.Story{
		{ID: uuid.New(), FinalScore: &five},
		{ID: uuid.New(), FinalScore: &five},
		{ID: uuid.New()},
	}

	p := ComputeProgress(stories)
	if p.TotalStories != 3 || p.EstimatedStories != 2 || p.PendingStories != 1 {
		t.Fatalf("progress = %+v", p)
	}
	if p.CompletionPercentage != 67 {
		t.Errorf("completion = %d, want 67", p.CompletionPercentage)
	}
}

func TestComputeProgressEmpty(t *testing.T) {
	p := ComputeProgress(nil)
	if p.TotalStories != 0 || p.CompletionPercentage != 0 {
		t.Fatalf("progress = %+v, want zeroes", p)
	}
}

func TestComputeActivity(t *testing.T) {
	storyA := uuid.New()
	storyB := uuid.New()
	c80 := 80
	c60 := 60

	rounds := []models.VotingRound{
		{StoryID: storyA, State: models.RoundStateRevealed, ConsensusPercentage: &c80},
		{StoryID: storyA, State: models.RoundStateFinalized, ConsensusPercentage: &c60},
		{StoryID: storyB, State: models.RoundStateVoting},
	}

	a := ComputeActivity(rounds)
	if a.TotalRounds != 3 || a.RevealedRounds != 2 {
		t.Fatalf("activity = %+v", a)
	}
	if a.AverageConsensus == nil || *a.AverageConsensus != 70 {
		t.Errorf("average consensus = %v, want 70", a.AverageConsensus)
	}
	// One of two stories needed more than one round.
	if a.RevoteRate == nil || *a.RevoteRate != 0.5 {
		t.Errorf("revote rate = %v, want 0.5", a.RevoteRate)
	}
}

func TestSummarizeStatus(t *testing.T) {
	eight := 8.0

	tests := []struct {
		name    string
		stories []models.Story
		rounds  []models.VotingRound
		want    string
	}{
		{
			name: "empty backlog",
			want: StatusNotStarted,
		},
		{
			name:    "backlog untouched",
			stories: []models.Story{{ID: uuid.New()}},
			want:    StatusNotStarted,
		},
		{
			name:    "some stories estimated",
			stories: []models.Story{{ID: uuid.New(), FinalScore: &eight}, {ID: uuid.New()}},
			want:    StatusInProgress,
		},
		{
			name:    "rounds run but nothing finalized",
			stories: []models.Story{{ID: uuid.New()}},
			rounds:  []models.VotingRound{{StoryID: uuid.New(), State: models.RoundStateVoting}},
			want:    StatusInProgress,
		},
		{
			name:    "all estimated",
			stories: []models.Story{{ID: uuid.New(), FinalScore: &eight}},
			want:    StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.stories, tt.rounds)
			if got.SessionStatus != tt.want {
				t.Errorf("status = %q, want %q", got.SessionStatus, tt.want)
			}
		})
	}
}

func TestSummarizeTotalPoints(t *testing.T) {
	three := 3.0
	five := 5.0
	stories := []models.Story{
		{ID: uuid.New(), FinalScore: &three},
		{ID: uuid.New(), FinalScore: &five},
		{ID: uuid.New()},
	}

	summary := Summarize(stories, nil)
	if summary.TotalPoints == nil || *summary.TotalPoints != 8 {
		t.Fatalf("total points = %v, want 8", summary.TotalPoints)
	}
}
