package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postline/postline/internal/models"
)

type CredentialsRepository interface {
	GetByProjectID(ctx context.Context, projectID int64) (*models.Credentials, error)
	SetVkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error
	SetOkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Credentials, error)
}

type credentialsRepository struct {
	db *sql.DB
}

func NewCredentialsRepository(db *sql.DB) CredentialsRepository {
	return &credentialsRepository{db: db}
}

const credentialsColumns = `id, project_id, tg_token,
	vk_token, vk_refresh_token, vk_device_id, vk_token_expires_at,
	ok_token, ok_refresh_token, ok_token_expires_at, ok_app_pub_key, ok_app_secret_key,
	ig_token, ig_user_id, max_token, updated_at`

func scanCredentials(row interface{ Scan(...any) error }) (*models.Credentials, error) {
	var c models.Credentials
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.TgToken,
		&c.VkToken, &c.VkRefreshToken, &c.VkDeviceID, &c.VkTokenExpiresAt,
		&c.OkToken, &c.OkRefreshToken, &c.OkTokenExpiresAt, &c.OkAppPubKey, &c.OkAppSecretKey,
		&c.IgToken, &c.IgUserID, &c.MaxToken, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialsRepository) GetByProjectID(ctx context.Context, projectID int64) (*models.Credentials, error) {
	query := `SELECT ` + credentialsColumns + ` FROM credentials WHERE project_id = $1`
	row := r.db.QueryRowContext(ctx, query, projectID)

	creds, err := scanCredentials(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return creds, nil
}

// SetVkToken writes token, refresh token and expiry in one statement so
// a crash never leaves a fresh token with a stale expiry.
func (r *credentialsRepository) SetVkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE credentials
		SET vk_token = $1,
			vk_refresh_token = $2,
			vk_token_expires_at = $3,
			updated_at = $4
		WHERE project_id = $5
	`
	_, err := r.db.ExecContext(ctx, query, token, refreshToken, expiresAt, time.Now(), projectID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialsRepository) SetOkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE credentials
		SET ok_token = $1,
			ok_refresh_token = $2,
			ok_token_expires_at = $3,
			updated_at = $4
		WHERE project_id = $5
	`
	_, err := r.db.ExecContext(ctx, query, token, refreshToken, expiresAt, time.Now(), projectID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialsRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Credentials, error) {
	query := `SELECT ` + credentialsColumns + ` FROM credentials
		WHERE (vk_token_expires_at BETWEEN $1 AND $2)
		   OR (ok_token_expires_at BETWEEN $1 AND $2)`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var list []*models.Credentials
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		list = append(list, creds)
	}
	return list, rows.Err()
}
