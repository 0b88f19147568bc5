// Package account stores local user accounts in SQLite.
package account

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "regexp"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
    "golang.org/x/crypto/bcrypt"
    _ "modernc.org/sqlite"
)

var (
    ErrUsernameTaken      = errors.New("username already taken")
    ErrInvalidCredentials = errors.New("invalid username or password")
    ErrInvalidUsername    = errors.New("username must be 3-32 letters, digits or underscores")
    ErrWeakPassword       = errors.New("password must be at least 6 characters")
    ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

const (
    minPasswordLen = 6
    // bcrypt rejects longer inputs
    maxPasswordLen = 72
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// User is a registered account. The password hash never leaves the store.
type User struct {
    ID       int64
    Username string
    Created  time.Time
}

// Store persists accounts.
type Store struct {
    db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash BLOB NOT NULL,
    created_at    INTEGER NOT NULL
)`

// Open opens (creating if needed) the SQLite database at path.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
    db, err := sql.Open("sqlite", path)
    if err != nil {
        return nil, fmt.Errorf("open accounts db: %w", err)
    }
    // one connection keeps ":memory:" databases shared and serializes writes
    db.SetMaxOpenConns(1)
    if err := db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping accounts db: %w", err)
    }
    if _, err := db.ExecContext(ctx, schema); err != nil {
        db.Close()
        return nil, fmt.Errorf("create users table: %w", err)
    }
    log.Debug().Str("path", path).Msg("accounts db ready")
    return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Register creates an account. Usernames are matched case-insensitively.
func (s *Store) Register(ctx context.Context, username, password string) (User, error) {
    username = strings.TrimSpace(username)
    if !usernameRe.MatchString(username) {
        return User{}, ErrInvalidUsername
    }
    if len(password) < minPasswordLen {
        return User{}, ErrWeakPassword
    }
    if len(password) > maxPasswordLen {
        return User{}, ErrPasswordTooLong
    }
    hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
    if err != nil {
        return User{}, fmt.Errorf("hash password: %w", err)
    }
    now := time.Now().UTC().Truncate(time.Second)
    res, err := s.db.ExecContext(ctx,
        `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)
         ON CONFLICT(username) DO NOTHING`,
        username, hash, now.Unix())
    if err != nil {
        return User{}, fmt.Errorf("insert user: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return User{}, fmt.Errorf("insert user: %w", err)
    }
    if n == 0 {
        return User{}, ErrUsernameTaken
    }
    id, err := res.LastInsertId()
    if err != nil {
        return User{}, fmt.Errorf("insert user: %w", err)
    }
    log.Info().Str("user", username).Msg("account registered")
    return User{ID: id, Username: username, Created: now}, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords both
// yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
    var (
        u       User
        hash    []byte
        created int64
    )
    err := s.db.QueryRowContext(ctx,
        `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
        strings.TrimSpace(username),
    ).Scan(&u.ID, &u.Username, &hash, &created)
    if errors.Is(err, sql.ErrNoRows) {
        return User{}, ErrInvalidCredentials
    }
    if err != nil {
        return User{}, fmt.Errorf("lookup user: %w", err)
    }
    if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
        return User{}, ErrInvalidCredentials
    }
    u.Created = time.Unix(created, 0).UTC()
    return u, nil
}
