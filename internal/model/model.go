package model

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleMod   Role = "mod"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMod, RoleAdmin:
		return true
	}
	return false
}

type StatementStatus string

const (
	StatusPending StatementStatus = "pending"
	StatusKept    StatementStatus = "kept"
	StatusBroken  StatementStatus = "broken"
)

func (s StatementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusKept, StatusBroken:
		return true
	}
	return false
}

// Entity type names used in the edit log.
const (
	EntityPolitician = "Politician"
	EntityStatement  = "Statement"
	EntityVote       = "Vote"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Politician struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Party         string     `json:"party"`
	Office        string     `json:"office"`
	Region        string     `json:"region"`
	TermStart     time.Time  `json:"termStart"`
	TermEnd       time.Time  `json:"termEnd"`
	IsDeleted     bool       `json:"isDeleted"`
	PendingDelete bool       `json:"pendingDelete"`
	DeletedBy     *string    `json:"deletedBy,omitempty"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Statement struct {
	ID            string          `json:"id"`
	PoliticianID  string          `json:"politicianId"`
	Text          string          `json:"text"`
	SourceURL     string          `json:"sourceUrl"`
	DateMade      time.Time       `json:"dateMade"`
	SubmittedByID string          `json:"submittedById"`
	Status        StatementStatus `json:"status"`
	IsDeleted     bool            `json:"isDeleted"`
	PendingDelete bool            `json:"pendingDelete"`
	Flagged       bool            `json:"flagged"`
	DeletedBy     *string         `json:"deletedBy,omitempty"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StatementView is a statement with its derived vote counts.
type StatementView struct {
	Statement
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// SplitVotes derives up/down counts from the number of ±1 votes and their sum.
func SplitVotes(total, net int) (up, down int) {
	return (total + net) / 2, (total - net) / 2
}

type Vote struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	StatementID string    `json:"statementId"`
	Value       int       `json:"value"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EditLog is one immutable before/after snapshot pair. Seq is assigned by the
// store in commit order.
type EditLog struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ActorID    string          `json:"actorId"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Token struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type SiteStats struct {
	Users          int64 `json:"users"`
	Politicians    int64 `json:"politicians"`
	Statements     int64 `json:"statements"`
	Votes          int64 `json:"votes"`
	Flagged        int64 `json:"flagged"`
	PendingDeletes int64 `json:"pendingDeletes"`
}
