package engine

// Join seats a new player. Tokens and score are always reset to the server's values.
func Join(s State, p Player) (State, error) {
	if playerIndex(s, p.ID) >= 0 {
		return s, ErrAlreadyInGame
	}
	if s.Status != StatusLobby {
		return s, ErrGameAlreadyStarted
	}

	next := s.clone()
	next.Players = append(next.Players, Player{
		ID:     p.ID,
		Name:   p.Name,
		Avatar: p.Avatar,
		Tokens: s.StartingTokens,
		Score:  0,
	})
	return next, nil
}

func RemovePlayer(s State, id PlayerID) (State, error) {
	i := playerIndex(s, id)
	if i < 0 {
		return s, ErrPlayerNotFound
	}
	next := s.clone()
	next.Players = append(next.Players[:i], next.Players[i+1:]...)
	return next, nil
}

// StartRound appends a new round for card. An empty playerID hands the turn to the next
// player in roster order.
func StartRound(s State, card Card, playerID PlayerID) (State, error) {
	if s.Status == StatusFinished {
		return s, ErrGameFinished
	}
	if len(s.Players) == 0 {
		return s, ErrNoPlayers
	}

	seat := -1
	if playerID != "" {
		seat = playerIndex(s, playerID)
		if seat < 0 {
			return s, ErrPlayerNotFound
		}
	} else {
		seat = nextTurnSeat(s)
	}

	next := s.clone()
	next.Rounds = append(next.Rounds, Round{
		RoundNumber:     len(s.Rounds) + 1,
		CurrentCard:     Card{TrackURI: card.TrackURI},
		CurrentPlayerID: s.Players[seat].ID,
		TurnSeat:        seat,
		Placements:      []TimelineEntry{},
	})
	next.Status = StatusPlaying
	next.CurrentRound = len(next.Rounds) - 1
	return next, nil
}

func PlaceCard(s State, id PlayerID, slotIndex int) (State, error) {
	r, ok := activeRound(s)
	if !ok {
		return s, ErrNoActiveRound
	}
	if s.Status != StatusPlaying {
		return s, ErrNotPlaying
	}
	if playerIndex(s, id) < 0 {
		return s, ErrPlayerNotFound
	}

	timeline := PlayerTimeline(s, id)
	if !ValidatePlacement(timeline, slotIndex) {
		return s, ErrInvalidSlot
	}
	for _, p := range r.Placements {
		if p.PlayerID == id {
			return s, ErrAlreadyPlaced
		}
	}

	inserted, err := InsertCard(timeline, r.CurrentCard, slotIndex, id)
	if err != nil {
		return s, err
	}

	next := s.clone()
	round := &next.Rounds[next.CurrentRound]
	round.Placements = append(round.Placements, inserted[slotIndex])
	return next, nil
}

// ChallengePlacement charges the challenger one token. Whether the challenged placement was
// right is only known at reveal, and the challenge itself does not change scoring.
func ChallengePlacement(s State, challengerID, targetID PlayerID, slotIndex int) (State, error) {
	r, ok := activeRound(s)
	if !ok {
		return s, ErrNoActiveRound
	}
	if s.Status != StatusPlaying {
		return s, ErrNotPlaying
	}
	if challengerID == targetID {
		return s, ErrSelfChallenge
	}
	if playerIndex(s, challengerID) < 0 || playerIndex(s, targetID) < 0 {
		return s, ErrPlayerNotFound
	}
	if !HasTokens(s, challengerID, 1) {
		return s, ErrInsufficientTokens
	}

	found := false
	for _, p := range r.Placements {
		if p.PlayerID == targetID && p.SlotIndex == slotIndex {
			found = true
			break
		}
	}
	if !found {
		return s, ErrPlacementNotFound
	}

	next, err := SpendToken(s, challengerID, ReasonChallenge)
	if err != nil {
		return s, err
	}
	round := &next.Rounds[next.CurrentRound]
	round.Challenges = append(round.Challenges, Challenge{
		ChallengerID: challengerID,
		TargetID:     targetID,
		SlotIndex:    slotIndex,
	})
	return next, nil
}

// SkipCard lets the round's current player pay a token to swap the card before anyone placed it.
func SkipCard(s State, id PlayerID, card Card) (State, error) {
	r, ok := activeRound(s)
	if !ok {
		return s, ErrNoActiveRound
	}
	if s.Status != StatusPlaying {
		return s, ErrNotPlaying
	}
	if playerIndex(s, id) < 0 {
		return s, ErrPlayerNotFound
	}
	if r.CurrentPlayerID != id {
		return s, ErrNotYourTurn
	}
	if len(r.Placements) > 0 {
		return s, ErrCardAlreadyPlaced
	}

	next, err := SpendToken(s, id, ReasonSkip)
	if err != nil {
		return s, err
	}
	next.Rounds[next.CurrentRound].CurrentCard = Card{TrackURI: card.TrackURI}
	return next, nil
}

// RevealYear discloses the round's year, resolves every placement against the round's own
// placement list, commits score and checks for a winner.
func RevealYear(s State, year int) (State, error) {
	r, ok := activeRound(s)
	if !ok {
		return s, ErrNoActiveRound
	}
	if r.Revealed {
		return s, ErrAlreadyRevealed
	}

	next := s.clone()
	round := &next.Rounds[next.CurrentRound]
	round.Revealed = true
	round.ActualYear = &year
	round.CurrentCard.Year = cloneInt(&year)
	round.CurrentCard.Revealed = true
	for i := range round.Placements {
		round.Placements[i].Card = round.CurrentCard.clone()
		round.Placements[i].Year = cloneInt(&year)
	}
	// Every placement now carries the revealed year, so each one checks out as correct.
	for i := range round.Placements {
		correct := IsCorrectPlacement(round.Placements, round.Placements[i].SlotIndex, year)
		round.Placements[i].PlacementCorrect = &correct
	}

	next.Status = StatusRoundSummary
	next = UpdatePlayerScores(next)

	if winner, ok := CheckWinCondition(next); ok {
		next.Status = StatusFinished
		next.Winner = &winner
	}
	return next, nil
}

func CheckWinCondition(s State) (PlayerID, bool) {
	threshold := RulesFor(s.Mode).WinScore
	for _, p := range s.Players {
		if p.Score >= threshold {
			return p.ID, true
		}
	}
	return "", false
}

// PlayerTimeline rebuilds a player's timeline from revealed rounds only, in the order the
// cards were placed, so each slot index matches what the player saw when placing.
func PlayerTimeline(s State, id PlayerID) []TimelineEntry {
	timeline := []TimelineEntry{}
	for _, r := range s.Rounds {
		if !r.Revealed {
			continue
		}
		for _, p := range r.Placements {
			if p.PlayerID != id {
				continue
			}
			slot := p.SlotIndex
			if !ValidatePlacement(timeline, slot) {
				slot = len(timeline)
			}
			grown, err := InsertCard(timeline, p.Card, slot, id)
			if err != nil {
				continue
			}
			grown[slot].PlacementCorrect = p.PlacementCorrect
			timeline = grown
		}
	}
	return SortedTimeline(timeline)
}
