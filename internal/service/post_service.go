package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/notify"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/internal/transfer"
)

// Dispatcher is the queue seam the post service schedules through.
type Dispatcher interface {
	Schedule(ctx context.Context, postID int64, due *time.Time) error
	Cancel(ctx context.Context, postID int64) error
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db         *sql.DB
	pr         repository.PostRepository
	ur         repository.UserRepository
	tokens     TokenService
	adapters   map[string]platform.Adapter
	dispatcher Dispatcher
	notifier   notify.Notifier
	uploadDir  string
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ur repository.UserRepository,
	tokens TokenService,
	adapters map[string]platform.Adapter,
	dispatcher Dispatcher,
	notifier notify.Notifier,
	uploadDir string) PostService {
	return &postService{
		db:         db,
		pr:         pr,
		ur:         ur,
		tokens:     tokens,
		adapters:   adapters,
		dispatcher: dispatcher,
		notifier:   notifier,
		uploadDir:  uploadDir,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}
	if strings.TrimSpace(pc.Text) == "" && strings.TrimSpace(pc.TextPlain) == "" && len(pc.MediaFiles) == 0 {
		err := errors.New("post has no content")
		slog.Info(err.Error())
		return 0, err
	}

	if err := validateTargets(pc); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	scheduledAt, err := parseSchedule(pc.ScheduledAt)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return 0, err
	}

	user, found, err := s.ur.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !found {
		return 0, errors.New("user does not exist")
	}

	info := models.JSONMap{}
	if buttons := buildButtons(userID, pc.Buttons); len(buttons) > 0 {
		info[models.InfoKeyButtons] = buttons
	}

	post := models.Post{
		ProjectID:    user.CurrentProjectID,
		UserID:       userID,
		Text:         pc.Text,
		TextPlain:    pc.TextPlain,
		MediaFiles:   models.StringList(pc.MediaFiles),
		PublishTg:    pc.PublishTg,
		PublishVk:    pc.PublishVk,
		PublishOk:    pc.PublishOk,
		PublishIg:    pc.PublishIg,
		PublishMax:   pc.PublishMax,
		TgChatID:     pc.TgChatID,
		VkGroupID:    pc.VkGroupID,
		OkGroupID:    pc.OkGroupID,
		MaxChatID:    pc.MaxChatID,
		VkLayout:     pc.VkLayout,
		Status:       models.PostStatusScheduled,
		PlatformInfo: info,
		ScheduledAt:  scheduledAt,
	}

	postID, err := s.pr.Create(ctx, nil, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	// VK is sent right away; its own publish_date does the timing, so
	// the orchestrator can skip VK at fire time.
	vkSent := false
	if post.PublishVk && post.VkGroupID != 0 {
		vkSent = s.sendVkEager(ctx, &post, info)
	}

	// A scheduled VK-only post still goes through the queue: VK holds
	// the pending wall post, and the fire-time pass (which skips VK)
	// flips the status once the moment arrives.
	onlyVk := post.PublishVk && !post.PublishTg && !post.PublishOk && !post.PublishIg && !post.PublishMax
	if onlyVk && vkSent && scheduledAt == nil {
		now := time.Now()
		if err := s.pr.FinishPublish(ctx, postID, models.PostStatusPublished, "", &now); err != nil {
			slog.Info(err.Error())
		}
		notifyOwner(ctx, s.ur, s.notifier, &post, models.PostStatusPublished)
		return postID, nil
	}

	if err := s.dispatcher.Schedule(ctx, postID, scheduledAt); err != nil {
		return postID, fmt.Errorf("error scheduling post: %w", err)
	}

	return postID, nil
}

func (s *postService) sendVkEager(ctx context.Context, post *models.Post, info models.JSONMap) bool {
	adapter, ok := s.adapters[platform.VK]
	if !ok {
		return false
	}

	creds, err := s.tokens.Resolve(ctx, post.ProjectID, platform.VK)
	if err != nil {
		slog.Info(err.Error())
		return false
	}

	text := post.TextPlain
	if text == "" {
		text = post.Text
	}
	paths := make([]string, 0, len(post.MediaFiles))
	for _, f := range post.MediaFiles {
		paths = append(paths, filepath.Join(s.uploadDir, f))
	}

	remoteID, err := adapter.Send(ctx, creds, strconv.FormatInt(post.VkGroupID, 10), platform.Content{
		Text:       text,
		MediaPaths: paths,
		Layout:     post.VkLayout,
		PublishAt:  post.ScheduledAt,
	})
	if err != nil {
		// Leave platform_info untouched so the orchestrator retries
		// VK at fire time
		slog.Info(err.Error())
		return false
	}

	info[models.InfoKeyVkPostID] = remoteID
	if err := s.pr.UpdatePlatformInfo(ctx, post.ID, info); err != nil {
		slog.Info(err.Error())
	}
	post.PlatformInfo = info

	return true
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return errors.New("post doesn't exist")
	}

	s.deleteRemote(ctx, post)

	for _, f := range post.MediaFiles {
		if err := os.Remove(filepath.Join(s.uploadDir, f)); err != nil && !os.IsNotExist(err) {
			slog.Info(err.Error())
		}
	}

	if err := s.dispatcher.Cancel(ctx, postID); err != nil {
		slog.Info(err.Error())
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}

// deleteRemote is best-effort: only Telegram and VK expose removal
// calls, and a failure never blocks the local delete.
func (s *postService) deleteRemote(ctx context.Context, post *models.Post) {
	if msgID, ok := post.PlatformInfo[models.InfoKeyTgMsgID].(string); ok && post.TgChatID != "" {
		if adapter, found := s.adapters[platform.Telegram]; found {
			creds, err := s.tokens.Resolve(ctx, post.ProjectID, platform.Telegram)
			if err == nil {
				if err := adapter.Delete(ctx, creds, post.TgChatID, msgID); err != nil {
					slog.Info(err.Error())
				}
			}
		}
	}

	if postID, ok := post.PlatformInfo[models.InfoKeyVkPostID].(string); ok && post.VkGroupID != 0 {
		if adapter, found := s.adapters[platform.VK]; found {
			creds, err := s.tokens.Resolve(ctx, post.ProjectID, platform.VK)
			if err == nil {
				dest := strconv.FormatInt(post.VkGroupID, 10)
				if err := adapter.Delete(ctx, creds, dest, postID); err != nil {
					slog.Info(err.Error())
				}
			}
		}
	}
}

func validateTargets(pc *transfer.PostCreation) error {
	selected := 0
	if pc.PublishTg {
		selected++
		if pc.TgChatID == "" {
			return errors.New("telegram chat id is required")
		}
	}
	if pc.PublishVk {
		selected++
		if pc.VkGroupID == 0 {
			return errors.New("vk group id is required")
		}
	}
	if pc.PublishOk {
		selected++
		if pc.OkGroupID == "" {
			return errors.New("ok group id is required")
		}
	}
	if pc.PublishIg {
		selected++
	}
	if pc.PublishMax {
		selected++
		if pc.MaxChatID == "" {
			return errors.New("max chat id is required")
		}
	}
	if selected == 0 {
		return errors.New("no platforms selected")
	}
	return nil
}

func buildButtons(userID int64, inputs []transfer.ButtonInput) []platform.Button {
	var buttons []platform.Button
	for _, in := range inputs {
		if in.Text == "" || in.Value == "" {
			continue
		}
		if strings.HasPrefix(in.Value, "http://") || strings.HasPrefix(in.Value, "https://") {
			buttons = append(buttons, platform.Button{Text: in.Text, URL: in.Value})
			continue
		}
		buttons = append(buttons, platform.Button{
			Text: in.Text,
			Data: platform.EncodeCallbackPayload(userID, in.Value),
		})
	}
	return buttons
}

func parseSchedule(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", value)
}
