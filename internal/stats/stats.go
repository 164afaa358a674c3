// Package stats computes the consensus figures broadcast when a round is
// revealed. The formulas are shared with stored historical rounds, so they
// must not drift.
package stats

import (
	"math"

	"github.com/mcdev12/pointdeck/internal/deck"
	"github.com/mcdev12/pointdeck/internal/models"
)

// Result holds the computed statistics for one vote snapshot.
type Result struct {
	Distribution        map[string]int `json:"distribution"`
	ConsensusPercentage int            `json:"consensus_percentage"`
	AverageVote         *float64       `json:"average_vote,omitempty"`
	CountedVotes        int            `json:"counted_votes"`
}

// Compute calculates the distribution, consensus percentage and average for
// a revealed vote snapshot.
//
// The "No Vote" sentinel is excluded from both the distribution and the
// consensus denominator. Non-numeric cards ("?") count in the distribution
// but are excluded from the average. The average is kept at two decimal
// places to match the stored precision of historical rounds.
func Compute(votes []models.Vote) Result {
	res := Result{Distribution: make(map[string]int)}

	var sum float64
	var numeric int
	for _, v := range votes {
		if v.Value == models.NoVote {
			continue
		}
		res.Distribution[v.Value]++
		res.CountedVotes++

		if n, ok := deck.NumericValue(v.Value); ok {
			sum += n
			numeric++
		}
	}

	if res.CountedVotes == 0 {
		return res
	}

	most := 0
	for _, c := range res.Distribution {
		if c > most {
			most = c
		}
	}
	res.ConsensusPercentage = int(math.Round(100 * float64(most) / float64(res.CountedVotes)))

	if numeric > 0 {
		avg := math.Round(sum/float64(numeric)*100) / 100
		res.AverageVote = &avg
	}
	return res
}
