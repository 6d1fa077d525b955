package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/supdinner/tables/internal/model"
)

// UserRepo reads and writes the users table.  Ids come from the identity
// provider, so rows are created by UpsertProfile rather than by an
// auto-increment insert.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id uint64) (model.User, error) {
	var (
		u        model.User
		suspEnd  sql.NullTime
		customer sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, first_name, phone_number, email, is_suspended, suspension_end_date, gateway_customer_id, created_at, updated_at
		   FROM users WHERE id = ? LIMIT 1`, id).
		Scan(&u.ID, &u.FirstName, &u.PhoneNumber, &u.Email, &u.IsSuspended, &suspEnd, &customer, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if suspEnd.Valid {
		t := suspEnd.Time
		u.SuspensionEndDate = &t
	}
	u.GatewayCustomerID = customer.String
	return u, nil
}

// SetGatewayCustomer stores customerID unless the user already has one and
// returns the id that ends up stored.
func (r *UserRepo) SetGatewayCustomer(ctx context.Context, userID uint64, customerID string) (string, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET gateway_customer_id = ?
		  WHERE id = ? AND (gateway_customer_id IS NULL OR gateway_customer_id = '')`,
		customerID, userID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return customerID, nil
	}
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.GatewayCustomerID, nil
}

// UpsertProfile creates the user row or updates its contact fields.
func (r *UserRepo) UpsertProfile(ctx context.Context, u model.User) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, first_name, phone_number, email) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE first_name = VALUES(first_name), phone_number = VALUES(phone_number), email = VALUES(email)`,
		u.ID, u.FirstName, u.PhoneNumber, u.Email)
	return err
}
