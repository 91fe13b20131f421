package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postline/postline/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, bool, error)
	UpdateNotifyPreference(ctx context.Context, id int64, notify bool) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	var user models.User
	query := "SELECT id, email, name, current_project_id, notify_on_publish FROM users WHERE id = $1"
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &user.CurrentProjectID, &user.NotifyOnPublish)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return &user, true, nil
}

func (r *userRepository) UpdateNotifyPreference(ctx context.Context, id int64, notify bool) error {
	query := `
		UPDATE users
		SET notify_on_publish = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, notify, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
