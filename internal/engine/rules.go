package engine

type Mode string

const (
	ModeOriginal Mode = "original"
	ModePro      Mode = "pro"
	ModeExpert   Mode = "expert"
	ModeCoop     Mode = "coop"
)

// Rules are fixed per mode and looked up again whenever they are needed,
// so a persisted State only has to carry its Mode.
type Rules struct {
	StartingTokens   int
	WinScore         int
	PointsPerCorrect int
}

var modeRules = map[Mode]Rules{
	ModeOriginal: {StartingTokens: 3, WinScore: 10, PointsPerCorrect: 1},
	ModePro:      {StartingTokens: 3, WinScore: 10, PointsPerCorrect: 1},
	ModeExpert:   {StartingTokens: 3, WinScore: 10, PointsPerCorrect: 1},
	ModeCoop:     {StartingTokens: 5, WinScore: 10, PointsPerCorrect: 1},
}

// RulesFor falls back to the original rules for unknown modes.
func RulesFor(mode Mode) Rules {
	if r, ok := modeRules[mode]; ok {
		return r
	}
	return modeRules[ModeOriginal]
}

func ValidMode(mode Mode) bool {
	_, ok := modeRules[mode]
	return ok
}
