package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type userRepository struct {
	q querier
}

func (r *userRepository) Create(user domain.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, email, display_name, bio, rating, total_sales, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		user.ID, user.Email, user.DisplayName, user.Bio,
		user.Rating, user.TotalSales, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var user domain.User
	err := r.q.QueryRowContext(ctx, `
		SELECT id, email, display_name, bio, rating, total_sales, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.Bio,
		&user.Rating, &user.TotalSales, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (r *userRepository) SetRating(id string, rating float64) error {
	return r.update(id, `rating = $2`, rating)
}

func (r *userRepository) IncrementTotalSales(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET total_sales = total_sales + 1, updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment total sales: %w", err)
	}
	return requireUserAffected(res)
}

func (r *userRepository) update(id, setClause string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET `+setClause+`, updated_at = $3
		WHERE id = $1
	`, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireUserAffected(res)
}

func requireUserAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for user update: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ domain.UserRepository = (*userRepository)(nil)
