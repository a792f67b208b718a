package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateEmail is returned when registering an account email that
// already exists.
var ErrDuplicateEmail = errors.New("account email already registered")

type UserRepositoryImpl struct {
	db *DB
}

var _ UserRepository = (*UserRepositoryImpl)(nil)

func NewUserRepository(db *DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) CreateUser(accountEmail, passwordHash, recipientEmail string) (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO app_users (account_email, password_hash, recipient_email, created_at)
		VALUES (?, ?, ?, ?)
	`, accountEmail, passwordHash, recipientEmail, formatTime(time.Now()))

	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}

	return id, nil
}

func (r *UserRepositoryImpl) GetUserByID(id int64) (*User, error) {
	return r.getUser(`WHERE id = ?`, id)
}

func (r *UserRepositoryImpl) GetUserByEmail(accountEmail string) (*User, error) {
	return r.getUser(`WHERE account_email = ?`, accountEmail)
}

func (r *UserRepositoryImpl) getUser(where string, arg interface{}) (*User, error) {
	var user User
	var createdAt string
	err := r.db.QueryRow(`
		SELECT id, account_email, password_hash, COALESCE(recipient_email, ''),
		       COALESCE(openai_api_key, ''), COALESCE(openai_model, 'gpt-4o-mini'),
		       COALESCE(summary_prompt, ''), created_at
		FROM app_users `+where, arg).Scan(
		&user.ID, &user.AccountEmail, &user.PasswordHash, &user.RecipientEmail,
		&user.OpenAIAPIKey, &user.OpenAIModel, &user.SummaryPrompt, &createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = parseTime(createdAt)
	return &user, nil
}

func (r *UserRepositoryImpl) UpdateSettings(userID int64, encryptedAPIKey, model, prompt string) error {
	var err error
	if encryptedAPIKey != "" {
		_, err = r.db.Exec(`
			UPDATE app_users
			SET openai_api_key = ?, openai_model = ?, summary_prompt = ?
			WHERE id = ?
		`, encryptedAPIKey, model, prompt, userID)
	} else {
		// Blank credential field keeps the stored key untouched.
		_, err = r.db.Exec(`
			UPDATE app_users
			SET openai_model = ?, summary_prompt = ?
			WHERE id = ?
		`, model, prompt, userID)
	}

	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}
