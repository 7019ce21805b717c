package domain

import (
	"time"
)

type MatchType string

const (
	MatchCasual     MatchType = "casual"
	MatchPractice   MatchType = "practice"
	MatchTournament MatchType = "tournament"
)

type MatchStatus string

const (
	MatchUnconfirmed MatchStatus = "unconfirmed"
	MatchConfirmed   MatchStatus = "confirmed"
	MatchRated       MatchStatus = "rated"
)

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

type Player struct {
	ID            string
	Name          string
	EloRating     float64
	EloPeak       float64
	MatchesForElo int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Match struct {
	ID        string
	MatchType MatchType
	BestOf    int
	SideAWins int
	SideBWins int
	Status    MatchStatus
	PlayedAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MatchParticipant struct {
	MatchID   string
	PlayerID  string
	Side      Side
	Confirmed bool
}

type Game struct {
	MatchID    string
	GameNumber int
	SideAScore int
	SideBScore int
}

type EloHistory struct {
	ID           string // nanoid
	MatchID      string
	PlayerID     string
	OldRating    float64
	NewRating    float64
	RatingChange float64
	KFactor      float64
	CreatedAt    time.Time
}
