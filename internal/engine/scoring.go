package engine

// RoundScore is the score delta the current round gives a player. Unrevealed rounds give nothing.
func RoundScore(s State, id PlayerID) int {
	r, ok := activeRound(s)
	if !ok || !r.Revealed {
		return 0
	}
	points := RulesFor(s.Mode).PointsPerCorrect
	delta := 0
	for _, p := range r.Placements {
		if p.PlayerID == id && p.PlacementCorrect != nil && *p.PlacementCorrect {
			delta += points
		}
	}
	return delta
}

// UpdatePlayerScores commits the current round's deltas. A round is only ever scored once.
func UpdatePlayerScores(s State) State {
	r, ok := activeRound(s)
	if !ok || !r.Revealed || r.Scored {
		return s
	}
	next := s.clone()
	for i := range next.Players {
		next.Players[i].Score += RoundScore(s, next.Players[i].ID)
	}
	next.Rounds[next.CurrentRound].Scored = true
	return next
}
