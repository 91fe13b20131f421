package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postline/postline/internal/models"
)

type RssSourceRepository interface {
	GetByID(ctx context.Context, id int64) (*models.RssSource, error)
	Create(ctx context.Context, source *models.RssSource) (int64, error)
	ListActive(ctx context.Context) ([]*models.RssSource, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.RssSource, error)
	CheckByUserID(ctx context.Context, sourceID, userID int64) (bool, error)
	UpdateCursor(ctx context.Context, id int64, guid string) error
	Remove(ctx context.Context, id int64) error
}

type rssSourceRepository struct {
	db *sql.DB
}

func NewRssSourceRepository(db *sql.DB) RssSourceRepository {
	return &rssSourceRepository{db: db}
}

const rssSourceColumns = `id, project_id, user_id, name, url, active,
	publish_tg, publish_vk, publish_ok, publish_ig, publish_max,
	tg_chat_id, vk_group_id, ok_group_id, max_chat_id, last_guid, created_at`

func scanRssSource(row interface{ Scan(...any) error }) (*models.RssSource, error) {
	var s models.RssSource
	err := row.Scan(
		&s.ID, &s.ProjectID, &s.UserID, &s.Name, &s.URL, &s.Active,
		&s.PublishTg, &s.PublishVk, &s.PublishOk, &s.PublishIg, &s.PublishMax,
		&s.TgChatID, &s.VkGroupID, &s.OkGroupID, &s.MaxChatID, &s.LastGUID, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *rssSourceRepository) GetByID(ctx context.Context, id int64) (*models.RssSource, error) {
	query := `SELECT ` + rssSourceColumns + ` FROM rss_sources WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	source, err := scanRssSource(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return source, nil
}

func (r *rssSourceRepository) Create(ctx context.Context, source *models.RssSource) (int64, error) {
	query := `
		INSERT INTO rss_sources (project_id, user_id, name, url, active,
			publish_tg, publish_vk, publish_ok, publish_ig, publish_max,
			tg_chat_id, vk_group_id, ok_group_id, max_chat_id, last_guid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		source.ProjectID, source.UserID, source.Name, source.URL, source.Active,
		source.PublishTg, source.PublishVk, source.PublishOk, source.PublishIg, source.PublishMax,
		source.TgChatID, source.VkGroupID, source.OkGroupID, source.MaxChatID, source.LastGUID,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *rssSourceRepository) ListActive(ctx context.Context) ([]*models.RssSource, error) {
	query := `SELECT ` + rssSourceColumns + ` FROM rss_sources WHERE active = true`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var sources []*models.RssSource
	for rows.Next() {
		source, err := scanRssSource(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (r *rssSourceRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.RssSource, error) {
	query := `SELECT ` + rssSourceColumns + ` FROM rss_sources WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var sources []*models.RssSource
	for rows.Next() {
		source, err := scanRssSource(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (r *rssSourceRepository) CheckByUserID(ctx context.Context, sourceID, userID int64) (bool, error) {
	query := "SELECT 1 FROM rss_sources WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, sourceID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// UpdateCursor advances last_guid. The cursor only ever moves forward;
// the ingestion pass persists it after every processed entry.
func (r *rssSourceRepository) UpdateCursor(ctx context.Context, id int64, guid string) error {
	query := `UPDATE rss_sources SET last_guid = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, guid, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rssSourceRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM rss_sources WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
