package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/models"
)

const usernameAttempts = 5

// EnsureUser creates the profile row for an authenticated identity if it does
// not exist yet. A concurrent insert of the same id is not an error. A taken
// username is retried with the next suffix.
func (s *Store) EnsureUser(ctx context.Context, id uuid.UUID, email string, fullName *string) error {
	now := s.now()
	for attempt := 0; attempt < usernameAttempts; attempt++ {
		username := generateUsername(email, now.Add(time.Duration(attempt)*time.Millisecond))

		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, email, full_name, username, role, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			 ON CONFLICT (id) DO NOTHING`,
			id, email, fullName, username, models.RoleUser)
		if err == nil {
			return nil
		}
		if !database.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", err)
		}
	}

	return fmt.Errorf("create user: no free username for %s after %d attempts", email, usernameAttempts)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, full_name, username, role, created_at, updated_at
		FROM users
		WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Username,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// generateUsername builds a handle from the email local part plus the last
// four digits of the current unix millis.
func generateUsername(email string, now time.Time) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		b.WriteString("user")
	}

	return fmt.Sprintf("%s%04d", b.String(), now.UnixMilli()%10000)
}
