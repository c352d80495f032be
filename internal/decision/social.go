package decision

import (
	"fmt"
	"math/rand/v2"

	"predictsim/internal/config"
	"predictsim/internal/domain"
)

// Post is a public message an agent publishes after trading.
type Post struct {
	AgentID    string `json:"agentId"`
	QuestionID uint64 `json:"questionId"`
	Content    string `json:"content"`
}

// DM is a private message from an insider to an outsider. It carries no
// knowledge; the recipient's clues are unchanged.
type DM struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// Social decides what agents say after a successful trade.
type Social struct {
	postProbability float64
	dmProbability   float64
}

func NewSocial(cfg config.AgentsConfig) *Social {
	return &Social{postProbability: cfg.PostProbability, dmProbability: cfg.DMProbability}
}

// React returns the post and DM that a sends after trading on sig. Either may
// be nil. outsiders is the pool of DM recipients.
func (s *Social) React(rng *rand.Rand, a domain.Agent, sig Signal, outsiders []string) (*Post, *DM) {
	var post *Post
	if rng.Float64() < s.postProbability {
		post = &Post{
			AgentID:    a.ID,
			QuestionID: sig.QuestionID,
			Content:    postText(rng, a, sig),
		}
	}

	var dm *DM
	if a.Role == domain.Insider && len(outsiders) > 0 && rng.Float64() < s.dmProbability {
		dm = &DM{
			From:    a.ID,
			To:      outsiders[rng.IntN(len(outsiders))],
			Message: fmt.Sprintf("Keep an eye on question %d this week.", sig.QuestionID),
		}
	}
	return post, dm
}

var buyPosts = []string{
	"%s: just took %s on question %d.",
	"%s: %s on question %d looks underpriced to me.",
	"%s: adding %s exposure on question %d.",
}

var sellPosts = []string{
	"%s: closed my %s on question %d.",
	"%s: changed my mind, out of %s on question %d.",
}

func postText(rng *rand.Rand, a domain.Agent, sig Signal) string {
	pool := buyPosts
	if sig.Action == Sell {
		pool = sellPosts
	}
	return fmt.Sprintf(pool[rng.IntN(len(pool))], a.Name, sig.Side, sig.QuestionID)
}
