package engine

// TokenReason is informational only; every spend costs exactly one token.
type TokenReason string

const (
	ReasonChallenge TokenReason = "challenge"
	ReasonSkip      TokenReason = "skip"
)

func TokenCount(s State, id PlayerID) (int, error) {
	i := playerIndex(s, id)
	if i < 0 {
		return 0, ErrPlayerNotFound
	}
	return s.Players[i].Tokens, nil
}

func SpendToken(s State, id PlayerID, reason TokenReason) (State, error) {
	i := playerIndex(s, id)
	if i < 0 {
		return s, ErrPlayerNotFound
	}
	if s.Players[i].Tokens <= 0 {
		return s, ErrNoTokens
	}
	next := s.clone()
	next.Players[i].Tokens--
	return next, nil
}

func AwardToken(s State, id PlayerID) (State, error) {
	i := playerIndex(s, id)
	if i < 0 {
		return s, ErrPlayerNotFound
	}
	next := s.clone()
	next.Players[i].Tokens++
	return next, nil
}

func HasTokens(s State, id PlayerID, required int) bool {
	i := playerIndex(s, id)
	if i < 0 {
		return false
	}
	return s.Players[i].Tokens >= required
}
