package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrCharacterNotFound = errors.New("character not found")

// CharacterRow represents a row from the characters table.
type CharacterRow struct {
	ID        int64
	AccountID int64
	Name      string
	Level     int16
	Meso      int64
	FieldID   int32
	GuildID   int64
	GuildName string
}

// CharacterRepo handles character persistence.
type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

// LoadByAccount returns all non-deleted characters of an account.
func (r *CharacterRepo) LoadByAccount(ctx context.Context, accountID int64) ([]CharacterRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, account_id, name, level, meso, field_id, guild_id, guild_name
		 FROM characters WHERE account_id = $1 AND deleted_at IS NULL ORDER BY id`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chars []CharacterRow
	for rows.Next() {
		var c CharacterRow
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.Meso,
			&c.FieldID, &c.GuildID, &c.GuildName); err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// FindByName looks a character up by name, online or not. Used by guild
// invites and applications targeting offline players.
func (r *CharacterRepo) FindByName(ctx context.Context, name string) (*CharacterRow, error) {
	var c CharacterRow
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, account_id, name, level, meso, field_id, guild_id, guild_name
		 FROM characters WHERE name = $1 AND deleted_at IS NULL`, name).
		Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.Meso,
			&c.FieldID, &c.GuildID, &c.GuildName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCharacterNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByID loads a single character row.
func (r *CharacterRepo) FindByID(ctx context.Context, charID int64) (*CharacterRow, error) {
	var c CharacterRow
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, account_id, name, level, meso, field_id, guild_id, guild_name
		 FROM characters WHERE id = $1 AND deleted_at IS NULL`, charID).
		Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.Meso,
			&c.FieldID, &c.GuildID, &c.GuildName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCharacterNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new character and returns its id.
func (r *CharacterRepo) Create(ctx context.Context, c CharacterRow) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO characters (account_id, name, level, meso, field_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.AccountID, c.Name, c.Level, c.Meso, c.FieldID).Scan(&id)
	return id, err
}

// UpdateWallet persists the character's meso balance.
func (r *CharacterRepo) UpdateWallet(ctx context.Context, charID, meso int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET meso = $1 WHERE id = $2`, meso, charID)
	return err
}

// UpdateField persists the character's current map.
func (r *CharacterRepo) UpdateField(ctx context.Context, charID int64, fieldID int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET field_id = $1 WHERE id = $2`, fieldID, charID)
	return err
}
