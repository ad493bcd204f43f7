package types

import "time"

// MatchStatus is the lifecycle of a match relationship between two players.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// Game is one entry of a player's game library.
type Game struct {
	ID      string    `json:"id"`
	Slug    string    `json:"slug"`
	Name    string    `json:"name"`
	Rank    string    `json:"rank,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

func (g Game) Key() string { return g.ID }

// Match is a suggested or resolved teammate relationship.
type Match struct {
	ID        string      `json:"id"`
	PeerID    string      `json:"peer_id"`
	PeerName  string      `json:"peer_name"`
	Status    MatchStatus `json:"status"`
	Score     int         `json:"score"`
	CreatedAt time.Time   `json:"created_at"`
}

func (m Match) Key() string { return m.ID }

// Message is one entry of a conversation, ordered by (CreatedAt, ID).
// Pending marks a locally appended message the server has not confirmed yet.
type Message struct {
	ID        string    `json:"id"`
	PeerID    string    `json:"peer_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"-"`
}

func (m Message) Key() string { return m.ID }

// Preview is the conversation-list summary of the latest message.
type Preview struct {
	LastContent string    `json:"last_content"`
	LastAt      time.Time `json:"last_at"`
}

// Conversation is the list-level view of a one-to-one thread.
type Conversation struct {
	PeerID   string  `json:"peer_id"`
	PeerName string  `json:"peer_name"`
	Unread   int     `json:"unread"`
	Preview  Preview `json:"preview"`
}

// GameSuggestion and PlayerSuggestion are the categorized short lists the
// search endpoint returns for a settled query.
type GameSuggestion struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type PlayerSuggestion struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Suggestions struct {
	Games   []GameSuggestion   `json:"games"`
	Players []PlayerSuggestion `json:"players"`
}

// Total counts rendered suggestions across categories, in display order
// (games first, then players).
func (s Suggestions) Total() int { return len(s.Games) + len(s.Players) }
