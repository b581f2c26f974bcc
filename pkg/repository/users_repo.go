package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

const usernameConstraint = "users_username_lower_key"

const userColumns = `id, username, lazy_username, password_hash, email, email_confirmed,
	       confirmation_token, confirmation_sent_at, first_name, last_name, gender, birthdate,
	       language, links, is_active, revision, last_login, created_at, updated_at`

// subjectQueries holds one lookup per provider so each hits its expression index.
var subjectQueries = func() map[domain.Provider]string {
	m := make(map[domain.Provider]string, len(domain.Providers))
	for _, p := range domain.Providers {
		m[p] = fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE (links->'%s'->'profile_data'->>'%s') = $1
	`, userColumns, p, p.SubjectField())
	}
	return m
}()

// UsersRepository handles user persistence in Postgres.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// Create inserts a new user. A zero ID is replaced by a fresh one.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	links, err := encodeLinks(user.Links)
	if err != nil {
		return err
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Revision = 1

	query := `
		INSERT INTO users (id, username, lazy_username, password_hash, email, email_confirmed,
		                   confirmation_token, confirmation_sent_at, first_name, last_name, gender, birthdate,
		                   language, links, is_active, revision, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err = r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.LazyUsername, user.PasswordHash, user.Email, user.EmailConfirmed,
		user.ConfirmationToken, user.ConfirmationSentAt, user.FirstName, user.LastName, string(user.Gender), user.Birthdate,
		user.Language, links, user.IsActive, user.Revision, user.LastLogin, user.CreatedAt, user.UpdatedAt,
	)
	return mapWriteError(err)
}

// Save writes the user back if nobody saved it since it was read.
func (r *UsersRepository) Save(ctx context.Context, user *domain.User) error {
	links, err := encodeLinks(user.Links)
	if err != nil {
		return err
	}
	now := time.Now()

	query := `
		UPDATE users
		SET username = $3, lazy_username = $4, password_hash = $5, email = $6, email_confirmed = $7,
		    confirmation_token = $8, confirmation_sent_at = $9, first_name = $10, last_name = $11,
		    gender = $12, birthdate = $13, language = $14, links = $15, is_active = $16,
		    last_login = $17, updated_at = $18, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Revision, user.Username, user.LazyUsername, user.PasswordHash, user.Email, user.EmailConfirmed,
		user.ConfirmationToken, user.ConfirmationSentAt, user.FirstName, user.LastName,
		string(user.Gender), user.Birthdate, user.Language, links, user.IsActive,
		user.LastLogin, now,
	)
	if err != nil {
		return mapWriteError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := r.exists(ctx, user.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrStaleRevision
		}
		return domain.ErrUserNotFound
	}
	user.Revision++
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by username, ignoring case.
func (r *UsersRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(username) = lower($1)
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetByProviderSubject retrieves the user whose provider profile carries subject.
func (r *UsersRepository) GetByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.User, error) {
	query, ok := subjectQueries[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}
	return r.scanOne(r.db.QueryRowContext(ctx, query, subject))
}

// GetByConfirmationToken retrieves the user holding an email confirmation token.
func (r *UsersRepository) GetByConfirmationToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE confirmation_token = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// ListByEmail returns active users whose email matches, ignoring case.
func (r *UsersRepository) ListByEmail(ctx context.Context, email string) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(email) = lower($1) AND is_active
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UsersRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *UsersRepository) scanOne(row *sql.Row) (*domain.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var gender string
	var links []byte
	err := row.Scan(
		&user.ID, &user.Username, &user.LazyUsername, &user.PasswordHash, &user.Email, &user.EmailConfirmed,
		&user.ConfirmationToken, &user.ConfirmationSentAt, &user.FirstName, &user.LastName, &gender, &user.Birthdate,
		&user.Language, &links, &user.IsActive, &user.Revision, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Gender = domain.Gender(gender)
	if user.Links, err = decodeLinks(links); err != nil {
		return nil, fmt.Errorf("decode links for user %s: %w", user.ID, err)
	}
	return user, nil
}

func encodeLinks(links map[domain.Provider]domain.ProviderLink) ([]byte, error) {
	if links == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	return data, nil
}

func decodeLinks(data []byte) (map[domain.Provider]domain.ProviderLink, error) {
	links := make(map[domain.Provider]domain.ProviderLink)
	if len(data) == 0 {
		return links, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&links); err != nil {
		return nil, err
	}
	return links, nil
}

// mapWriteError turns unique violations into persistence conflicts.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		if pqErr.Constraint == usernameConstraint {
			return fmt.Errorf("%w (%s)", domain.ErrUsernameAlreadyExists, pqErr.Detail)
		}
		return fmt.Errorf("%w (%s)", domain.ErrIdentityAlreadyLinked, pqErr.Constraint)
	}
	return err
}
