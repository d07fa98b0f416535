package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitStakeAPI/internal/apperror"
	"habitStakeAPI/internal/types/user"
)

// UserService manages the local mirror of Clerk users. Rows are created
// and removed by the Clerk webhook; the profile endpoints only read and
// update them.
type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

const userColumns = `id, clerk_id, email, username, first_name, last_name, image_url,
	email_verified, timezone, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.Timezone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, timezone, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 'UTC', NOW(), NOW())
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query,
		uuid.New().String(), req.ClerkID, req.Email, req.Username, req.FirstName, req.LastName, req.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperror.NotFoundError{Resource: "user"}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, apperror.NewValidationError("timezone", "must be a valid IANA timezone name")
		}
	}

	query := `
	UPDATE users
	SET username   = COALESCE(NULLIF($2, ''), username),
	    first_name = COALESCE(NULLIF($3, ''), first_name),
	    last_name  = COALESCE(NULLIF($4, ''), last_name),
	    image_url  = COALESCE(NULLIF($5, ''), image_url),
	    timezone   = COALESCE(NULLIF($6, ''), timezone),
	    updated_at = NOW()
	WHERE clerk_id = $1
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query,
		clerkID, req.Username, req.FirstName, req.LastName, req.ImageURL, req.Timezone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperror.NotFoundError{Resource: "user"}
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *UserService) UpdateEmailVerification(ctx context.Context, clerkID string, verified bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET email_verified = $2, updated_at = NOW() WHERE clerk_id = $1`, clerkID, verified)
	if err != nil {
		return fmt.Errorf("failed to update email verification: %w", err)
	}
	return nil
}

// DeleteUserByClerkID removes the user row. Challenges, check-ins and
// notifications follow via ON DELETE CASCADE.
func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperror.NotFoundError{Resource: "user"}
	}
	return nil
}
