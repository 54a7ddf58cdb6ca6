package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrBadPassword     = errors.New("bad password")
	ErrAccountBanned   = errors.New("account banned")
	ErrAccountOnline   = errors.New("account already online")
)

// AccountRow represents a row from the accounts table.
type AccountRow struct {
	ID           int64
	Name         string
	PasswordHash string
	Banned       bool
	Online       bool
}

// AccountRepo handles account authentication and state.
type AccountRepo struct {
	db         *DB
	autoCreate bool
}

func NewAccountRepo(db *DB, autoCreate bool) *AccountRepo {
	return &AccountRepo{db: db, autoCreate: autoCreate}
}

// Authenticate verifies credentials. With auto-create enabled an unknown
// account name registers itself with the supplied password.
func (r *AccountRepo) Authenticate(ctx context.Context, name, password string) (*AccountRow, error) {
	var a AccountRow
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, password_hash, banned, online FROM accounts WHERE name = $1`, name).
		Scan(&a.ID, &a.Name, &a.PasswordHash, &a.Banned, &a.Online)
	if errors.Is(err, pgx.ErrNoRows) {
		if !r.autoCreate {
			return nil, ErrAccountNotFound
		}
		return r.create(ctx, name, password)
	}
	if err != nil {
		return nil, err
	}

	if a.Banned {
		return nil, ErrAccountBanned
	}
	if a.Online {
		return nil, ErrAccountOnline
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadPassword
	}
	return &a, nil
}

func (r *AccountRepo) create(ctx context.Context, name, password string) (*AccountRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO accounts (name, password_hash) VALUES ($1, $2) RETURNING id`,
		name, string(hash)).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &AccountRow{ID: id, Name: name, PasswordHash: string(hash)}, nil
}

// SetOnline flips the online flag and stamps last activity.
func (r *AccountRepo) SetOnline(ctx context.Context, accountID int64, online bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET online = $1, last_active = NOW() WHERE id = $2`,
		online, accountID)
	return err
}

// SetOfflineByName clears the online flag at session teardown, when only
// the account name is at hand.
func (r *AccountRepo) SetOfflineByName(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET online = FALSE, last_active = NOW() WHERE name = $1`, name)
	return err
}

// ResetOnline clears every online flag. Called once at startup to recover
// from an unclean shutdown.
func (r *AccountRepo) ResetOnline(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE accounts SET online = FALSE WHERE online`)
	return err
}
