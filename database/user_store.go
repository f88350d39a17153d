package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/apperr"
	"shop-service/models"
)

type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	res, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, name, role)
		VALUES (?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.Name, u.Role)
	if err != nil {
		if isDuplicateKey(err) {
			return apperr.New(apperr.KindConflict, "email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.SQL.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.SQL.GetContext(ctx, &u, `SELECT * FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	return &u, nil
}
