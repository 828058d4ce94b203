// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vovakirdan/roomwire/internal/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresStore implements store.Store for PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New initializes a connection pool and applies pending migrations.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := Migrate(sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate applies all pending migrations from the embedded file system.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// IsUniqueViolation checks if the error is a unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ==== UserStore implementation ====

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string, role store.Role) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, username, password_hash, role, created_at
	`, username, passwordHash, string(role))

	user, err := scanUser(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1
	`, username))
}

func scanUser(row pgx.Row) (*store.User, error) {
	var (
		user store.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, err
	}
	user.Role = store.Role(role)
	return &user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== RoomStore implementation ====

func (s *PostgresStore) CreateRoom(ctx context.Context, room *store.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, created_by, is_general, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, room.ID, room.Name, nullableID(room.CreatedBy), room.IsGeneral, room.CreatedAt); err != nil {
			return err
		}
		if room.CreatedBy == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, room.ID, room.CreatedBy)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("insert room %q: %w", room.Name, store.ErrConflict)
		}
		return fmt.Errorf("insert room: %w", err)
	}

	if room.CreatedBy != 0 {
		room.Members = []int64{room.CreatedBy}
	}
	return nil
}

const roomColumns = `id, name, COALESCE(created_by, 0), is_general, created_at`

func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if room.Members, err = s.ListMembers(ctx, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *PostgresStore) GetGeneralRoom(ctx context.Context) (*store.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE is_general`))
}

func (s *PostgresStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name))
}

func scanRoom(row pgx.Row) (*store.Room, error) {
	var room store.Room
	if err := row.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.IsGeneral, &room.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, withMembers bool) ([]*store.Room, error) {
	if !withMembers {
		return s.queryRooms(ctx, `
			SELECT `+roomColumns+` FROM rooms
			ORDER BY is_general DESC, created_at ASC, name ASC
		`)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, COALESCE(r.created_by, 0), r.is_general, r.created_at,
		       COALESCE(array_agg(m.user_id ORDER BY m.joined_at, m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM rooms r
		LEFT JOIN room_members m ON m.room_id = r.id
		GROUP BY r.id
		ORDER BY r.is_general DESC, r.created_at ASC, r.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Room, error) {
		var room store.Room
		err := row.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.IsGeneral, &room.CreatedAt, &room.Members)
		return &room, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	for _, room := range rooms {
		if len(room.Members) == 0 {
			room.Members = nil
		}
	}
	return rooms, nil
}

func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	return s.queryRooms(ctx, `
		SELECT r.id, r.name, COALESCE(r.created_by, 0), r.is_general, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id = $1
		ORDER BY r.is_general DESC, r.created_at ASC, r.name ASC
	`, userID)
}

func (s *PostgresStore) queryRooms(ctx context.Context, query string, args ...any) ([]*store.Room, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Room, error) {
		var room store.Room
		err := row.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.IsGeneral, &room.CreatedAt)
		return &room, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	return rooms, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("insert room member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("delete room member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, roomID string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM room_members WHERE room_id = $1 ORDER BY joined_at ASC, user_id ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

// ==== MessageStore implementation ====

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeUser
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, sender_name, text, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, msg.RoomID, msg.SenderID, msg.SenderName, msg.Text, string(msg.Type), msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, sender_id, sender_name, text, type, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Message, error) {
		var (
			msg     store.Message
			msgType string
		)
		err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Text, &msgType, &msg.CreatedAt)
		msg.Type = store.MessageType(msgType)
		return &msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
