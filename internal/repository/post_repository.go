package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postline/postline/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	MarkPublishing(ctx context.Context, postID int64) error
	FinishPublish(ctx context.Context, postID int64, status, errorMessage string, publishedAt *time.Time) error
	UpdatePlatformInfo(ctx context.Context, postID int64, info models.JSONMap) error
	ExistsBySourceGUID(ctx context.Context, projectID int64, guid string) (bool, error)
	ListStuckPublishing(ctx context.Context, before time.Time) ([]*models.Post, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, project_id, user_id, text, text_plain, media_files,
	publish_tg, publish_vk, publish_ok, publish_ig, publish_max,
	tg_chat_id, vk_group_id, ok_group_id, max_chat_id, vk_layout,
	source_guid, status, error_message, platform_info,
	scheduled_at, published_at, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID, &post.ProjectID, &post.UserID, &post.Text, &post.TextPlain, &post.MediaFiles,
		&post.PublishTg, &post.PublishVk, &post.PublishOk, &post.PublishIg, &post.PublishMax,
		&post.TgChatID, &post.VkGroupID, &post.OkGroupID, &post.MaxChatID, &post.VkLayout,
		&post.SourceGUID, &post.Status, &post.ErrorMessage, &post.PlatformInfo,
		&post.ScheduledAt, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (project_id, user_id, text, text_plain, media_files,
			publish_tg, publish_vk, publish_ok, publish_ig, publish_max,
			tg_chat_id, vk_group_id, ok_group_id, max_chat_id, vk_layout,
			source_guid, status, error_message, platform_info, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	args := []any{
		post.ProjectID, post.UserID, post.Text, post.TextPlain, post.MediaFiles,
		post.PublishTg, post.PublishVk, post.PublishOk, post.PublishIg, post.PublishMax,
		post.TgChatID, post.VkGroupID, post.OkGroupID, post.MaxChatID, post.VkLayout,
		post.SourceGUID, post.Status, post.ErrorMessage, post.PlatformInfo, post.ScheduledAt,
	}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) MarkPublishing(ctx context.Context, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			error_message = '',
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) FinishPublish(ctx context.Context, postID int64, status, errorMessage string, publishedAt *time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			error_message = $2,
			published_at = $3,
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, status, errorMessage, publishedAt, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdatePlatformInfo(ctx context.Context, postID int64, info models.JSONMap) error {
	query := `UPDATE posts SET platform_info = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, info, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) ExistsBySourceGUID(ctx context.Context, projectID int64, guid string) (bool, error) {
	query := "SELECT 1 FROM posts WHERE project_id = $1 AND source_guid = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, projectID, guid).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) ListStuckPublishing(ctx context.Context, before time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND updated_at < $2`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPublishing, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
