package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	avatarColumns  = "id, session_id, owner_id, display_name, x, y, color, last_active, created_at"
	messageColumns = "id, avatar_id, text, created_at, expires_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAvatar(row rowScanner) (Avatar, error) {
	var (
		a       Avatar
		ownerId sql.NullInt64
	)
	err := row.Scan(
		&a.Id,
		&a.SessionId,
		&ownerId,
		&a.DisplayName,
		&a.X,
		&a.Y,
		&a.Color,
		&a.LastActive,
		&a.CreatedAt,
	)
	if err != nil {
		return Avatar{}, err
	}

	if ownerId.Valid {
		id := int(ownerId.Int64)
		a.OwnerId = &id
	}
	a.LastActive = a.LastActive.UTC()
	a.CreatedAt = a.CreatedAt.UTC()

	return a, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	if err := row.Scan(&m.Id, &m.AvatarId, &m.Text, &m.CreatedAt, &m.ExpiresAt); err != nil {
		return Message{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()

	return m, nil
}

func nullOwner(ownerId *int) sql.NullInt64 {
	if ownerId == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*ownerId), Valid: true}
}

func (db *PgCrabRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}

	return u, err
}

func (db *PgCrabRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, notFoundOr(err, "get account %d", id)
	}

	return user, nil
}

func (db *PgCrabRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, notFoundOr(err, "get account by email")
	}

	return user, nil
}

func (db *PgCrabRepository) GetAvatarBySessionId(ctx context.Context, sessionId string) (Avatar, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+avatarColumns+" FROM avatars WHERE session_id = $1 LIMIT 1",
		sessionId,
	)

	a, err := scanAvatar(row)
	if err != nil {
		return Avatar{}, notFoundOr(err, "get avatar by session")
	}

	return a, nil
}

func (db *PgCrabRepository) CreateAvatarIfAbsent(ctx context.Context, params CreateAvatarParams) (Avatar, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO avatars ("+avatarColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"ON CONFLICT (session_id) DO NOTHING "+
			"RETURNING "+avatarColumns,
		uuid.NewString(),
		params.SessionId,
		nullOwner(params.OwnerId),
		params.DisplayName,
		params.X,
		params.Y,
		params.Color,
		params.Now.UTC(),
		params.Now.UTC(),
	)

	a, err := scanAvatar(row)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Avatar{}, false, fmt.Errorf("insert avatar: %w", err)
	}

	// another request created the row first
	a, err = db.GetAvatarBySessionId(ctx, params.SessionId)
	if err != nil {
		return Avatar{}, false, err
	}

	return a, false, nil
}

func (db *PgCrabRepository) TouchAvatar(ctx context.Context, avatarId string, lastActive time.Time, ownerId *int) (Avatar, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE avatars SET last_active = $2, owner_id = COALESCE($3::integer, owner_id) "+
			"WHERE id = $1 RETURNING "+avatarColumns,
		avatarId,
		lastActive.UTC(),
		nullOwner(ownerId),
	)

	a, err := scanAvatar(row)
	if err != nil {
		return Avatar{}, notFoundOr(err, "touch avatar %s", avatarId)
	}

	return a, nil
}

func (db *PgCrabRepository) UpdateAvatarPosition(ctx context.Context, avatarId string, x, y float64, lastActive time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE avatars SET x = $2, y = $3, last_active = $4 WHERE id = $1",
		avatarId,
		x,
		y,
		lastActive.UTC(),
	)
	if err != nil {
		return notFoundOr(err, "update avatar position")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgCrabRepository) ListAvatarsActiveSince(ctx context.Context, since time.Time) ([]Avatar, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+avatarColumns+" FROM avatars WHERE last_active > $1 ORDER BY created_at",
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	defer rows.Close()

	avatars := make([]Avatar, 0)
	for rows.Next() {
		a, err := scanAvatar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan avatar: %w", err)
		}
		avatars = append(avatars, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return avatars, nil
}

func (db *PgCrabRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING "+messageColumns,
		uuid.NewString(),
		params.AvatarId,
		params.Text,
		params.CreatedAt.UTC(),
		params.ExpiresAt.UTC(),
	)

	m, err := scanMessage(row)
	if err != nil {
		return Message{}, notFoundOr(err, "insert message")
	}

	return m, nil
}

func (db *PgCrabRepository) ListMessagesExpiringAfter(ctx context.Context, t time.Time) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE expires_at > $1 ORDER BY created_at",
		t.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func (db *PgCrabRepository) DeleteMessagesExpiredBy(ctx context.Context, t time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE expires_at <= $1", t.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}

	return res.RowsAffected()
}
