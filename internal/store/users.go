// internal/store/users.go
package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	apperrors "notification-system/internal/common/errors"
)

// UserContact is the delivery address material of one recipient.
type UserContact struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

// UserStore resolves recipient contact details. The users table is owned by
// the surrounding admin suite; this store only reads from it.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// GetContact fetches the email and phone of a user.
func (s *UserStore) GetContact(ctx context.Context, userID int64) (*UserContact, error) {
	c := &UserContact{UserID: userID}
	var email, phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT email, phone FROM users WHERE id = $1`,
		userID,
	).Scan(&email, &phone)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", userID)
		}
		return nil, apperrors.NewQueryFailedError("get user contact", err)
	}
	c.Email = email.String
	c.Phone = phone.String
	return c, nil
}
