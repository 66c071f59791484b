package gateway

import (
	"math/rand"
	"net/http"
)

// rewardTier pairs a badge with the points it awards.
type rewardTier struct {
	Emoji  string `json:"emoji"`
	Points int    `json:"points"`
	Weight int    `json:"-"`
}

// Rare tiers are worth more. Weights are per-hundred.
var rewardTiers = []rewardTier{
	{Emoji: "🔥", Points: 100, Weight: 5},
	{Emoji: "⭐️", Points: 50, Weight: 25},
	{Emoji: "🍀", Points: 10, Weight: 70},
}

// Reward answers POST /reward with a randomly drawn reward tier. This is the
// demo incentive endpoint; payouts carry no server-side state.
func (h *Handler) Reward(w http.ResponseWriter, r *http.Request) {
	draw := rand.Intn(100)

	var cumulative int
	for _, tier := range rewardTiers {
		cumulative += tier.Weight
		if draw < cumulative {
			writeJSON(w, http.StatusOK, tier)
			return
		}
	}
	writeJSON(w, http.StatusOK, rewardTiers[len(rewardTiers)-1])
}
