package engine

// nextTurnSeat picks the roster index for a new round when no player was requested.
//
// The player after the previous round's actor goes next, wrapping around. If that actor
// has since left, the roster has shifted down by one behind them, so the seat they used
// to occupy now holds the next present player.
func nextTurnSeat(s State) int {
	n := len(s.Players)
	if n == 0 {
		return -1
	}
	if len(s.Rounds) == 0 {
		return 0
	}
	prev := s.Rounds[len(s.Rounds)-1]
	if i := playerIndex(s, prev.CurrentPlayerID); i >= 0 {
		return (i + 1) % n
	}
	if prev.TurnSeat < 0 {
		return 0
	}
	return prev.TurnSeat % n
}
