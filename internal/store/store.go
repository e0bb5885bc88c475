package store

import (
	"context"
	"errors"

	"github.com/truthtally/truthtally/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("transaction conflict")
	ErrDuplicateEmail = errors.New("duplicate email")
)

type PoliticianListOpts struct {
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type StatementListOpts struct {
	PoliticianID   string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Store is the shared handle. Mutations of politicians, statements and votes
// only happen through InTx so that the entity write, the derived aggregate and
// the audit entry commit together.
type Store interface {
	Reader
	UserStore
	AuthStore
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Reader interface {
	GetPolitician(ctx context.Context, id string) (model.Politician, error)
	ListPoliticians(ctx context.Context, opts PoliticianListOpts) ([]model.Politician, error)
	GetStatement(ctx context.Context, id string) (model.Statement, error)
	GetStatementView(ctx context.Context, id string) (model.StatementView, error)
	ListStatements(ctx context.Context, opts StatementListOpts) ([]model.StatementView, error)
	ListFlaggedStatements(ctx context.Context, limit int) ([]model.StatementView, error)
	ListPendingPoliticians(ctx context.Context, limit int) ([]model.Politician, error)
	ListPendingStatements(ctx context.Context, limit int) ([]model.Statement, error)
	ListEditLogs(ctx context.Context, entityType, entityID string) ([]model.EditLog, error)
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
}

// Tx is bound to a single transaction. It has no method that updates or
// deletes an edit log entry.
type Tx interface {
	GetPolitician(ctx context.Context, id string) (model.Politician, error)
	InsertPolitician(ctx context.Context, p model.Politician) error
	UpdatePolitician(ctx context.Context, p model.Politician) error

	GetStatement(ctx context.Context, id string) (model.Statement, error)
	InsertStatement(ctx context.Context, s model.Statement) error
	UpdateStatement(ctx context.Context, s model.Statement) error

	GetVote(ctx context.Context, userID, statementID string) (model.Vote, error)
	UpsertVote(ctx context.Context, v model.Vote) (model.Vote, error)
	VoteAggregate(ctx context.Context, statementID string) (count int, sum int, err error)

	AppendEditLog(ctx context.Context, entry model.EditLog) (model.EditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	SetUserRole(ctx context.Context, id string, role model.Role) error
}

type AuthStore interface {
	CreateToken(ctx context.Context, token model.Token) error
	GetToken(ctx context.Context, token string) (model.Token, error)
	DeleteToken(ctx context.Context, token string) error
}
