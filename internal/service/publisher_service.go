package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/notify"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/pkg/ratelimit"
)

// Publisher runs the fan-out for one post and owns its status after
// creation.
type Publisher interface {
	Publish(ctx context.Context, postID int64) error
}

type publisherService struct {
	pr        repository.PostRepository
	ur        repository.UserRepository
	tokens    TokenService
	adapters  map[string]platform.Adapter
	limiter   *ratelimit.MultiLimiter
	notifier  notify.Notifier
	uploadDir string
}

func NewPublisherService(
	pr repository.PostRepository,
	ur repository.UserRepository,
	tokens TokenService,
	adapters map[string]platform.Adapter,
	limiter *ratelimit.MultiLimiter,
	notifier notify.Notifier,
	uploadDir string) Publisher {
	return &publisherService{
		pr:        pr,
		ur:        ur,
		tokens:    tokens,
		adapters:  adapters,
		limiter:   limiter,
		notifier:  notifier,
		uploadDir: uploadDir,
	}
}

type publishTarget struct {
	name        string
	prefix      string
	infoKey     string
	requireDest bool
	enabled     func(p *models.Post) bool
	dest        func(p *models.Post) string
}

// publishTargets is the closed platform set. Order is the fan-out
// order; a platform whose remote id is already in platform_info is
// skipped, which is how the eager VK send stays single-shot.
var publishTargets = []publishTarget{
	{
		name: platform.Telegram, prefix: "TG", infoKey: models.InfoKeyTgMsgID, requireDest: true,
		enabled: func(p *models.Post) bool { return p.PublishTg },
		dest:    func(p *models.Post) string { return p.TgChatID },
	},
	{
		name: platform.VK, prefix: "VK", infoKey: models.InfoKeyVkPostID, requireDest: true,
		enabled: func(p *models.Post) bool { return p.PublishVk },
		dest: func(p *models.Post) string {
			if p.VkGroupID == 0 {
				return ""
			}
			return strconv.FormatInt(p.VkGroupID, 10)
		},
	},
	{
		name: platform.OK, prefix: "OK", infoKey: models.InfoKeyOkTopicID, requireDest: true,
		enabled: func(p *models.Post) bool { return p.PublishOk },
		dest:    func(p *models.Post) string { return p.OkGroupID },
	},
	{
		name: platform.Instagram, prefix: "IG", infoKey: models.InfoKeyIgMediaID,
		// Destination is the business account id from credentials
		enabled: func(p *models.Post) bool { return p.PublishIg },
		dest:    func(p *models.Post) string { return "" },
	},
	{
		name: platform.Max, prefix: "MAX", infoKey: models.InfoKeyMaxMsgID, requireDest: true,
		enabled: func(p *models.Post) bool { return p.PublishMax },
		dest:    func(p *models.Post) string { return p.MaxChatID },
	},
}

func (s *publisherService) Publish(ctx context.Context, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}

	if err := s.pr.MarkPublishing(ctx, postID); err != nil {
		return fmt.Errorf("mark post %d publishing: %w", postID, err)
	}

	info := post.PlatformInfo
	if info == nil {
		info = models.JSONMap{}
	}

	var errs []string
	for _, t := range publishTargets {
		if !t.enabled(post) {
			continue
		}
		if _, done := info[t.infoKey]; done {
			continue
		}

		dest := t.dest(post)
		if t.requireDest && dest == "" {
			errs = append(errs, fmt.Sprintf("%s: destination not configured", t.prefix))
			continue
		}

		if err := s.limiter.Wait(ctx, t.name); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", t.prefix, err))
			continue
		}

		creds, err := s.tokens.Resolve(ctx, post.ProjectID, t.name)
		if err != nil {
			slog.Info(err.Error())
			errs = append(errs, fmt.Sprintf("%s: %s", t.prefix, err))
			continue
		}

		adapter, ok := s.adapters[t.name]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: no adapter registered", t.prefix))
			continue
		}

		remoteID, err := adapter.Send(ctx, creds, dest, s.contentFor(post, t.name))
		if err != nil {
			slog.Info(err.Error())
			errs = append(errs, fmt.Sprintf("%s: %s", t.prefix, err))
			continue
		}

		// Persist after every success so a crash mid-fan-out never
		// resends what already went out
		info[t.infoKey] = remoteID
		if err := s.pr.UpdatePlatformInfo(ctx, postID, info); err != nil {
			slog.Info(err.Error())
		}
	}

	succeeded := 0
	for _, t := range publishTargets {
		if !t.enabled(post) {
			continue
		}
		if _, ok := info[t.infoKey]; ok {
			succeeded++
		}
	}

	status := models.PostStatusPublished
	var publishedAt *time.Time
	switch {
	case len(errs) == 0:
		now := time.Now()
		publishedAt = &now
	case succeeded > 0:
		status = models.PostStatusPartial
	default:
		status = models.PostStatusFailed
	}

	if err := s.pr.FinishPublish(ctx, postID, status, strings.Join(errs, " | "), publishedAt); err != nil {
		return fmt.Errorf("finish post %d: %w", postID, err)
	}

	notifyOwner(ctx, s.ur, s.notifier, post, status)

	return nil
}

func (s *publisherService) contentFor(post *models.Post, platformName string) platform.Content {
	text := post.TextPlain
	if platformName == platform.Telegram || text == "" {
		text = post.Text
	}

	paths := make([]string, 0, len(post.MediaFiles))
	for _, f := range post.MediaFiles {
		paths = append(paths, filepath.Join(s.uploadDir, f))
	}

	return platform.Content{
		Text:       text,
		MediaPaths: paths,
		Buttons:    ButtonsFromInfo(post.PlatformInfo),
		Layout:     post.VkLayout,
	}
}

// notifyOwner fires the terminal-status notification when the owner
// opted in. Best-effort; failures only log. Shared with the eager
// VK-only path, which reaches a terminal status without the fan-out.
func notifyOwner(ctx context.Context, ur repository.UserRepository, n notify.Notifier, post *models.Post, status string) {
	user, found, err := ur.GetByID(ctx, post.UserID)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !found || !user.NotifyOnPublish {
		return
	}

	if err := n.Notify(ctx, post.UserID, "post."+status, map[string]any{"post_id": post.ID}); err != nil {
		slog.Info(err.Error())
	}
}

// ButtonsFromInfo decodes the button definitions stored at creation
// time. platform_info goes through a JSON round-trip, so the value is
// re-marshalled rather than type-asserted.
func ButtonsFromInfo(info models.JSONMap) []platform.Button {
	raw, ok := info[models.InfoKeyButtons]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var buttons []platform.Button
	if err := json.Unmarshal(b, &buttons); err != nil {
		return nil
	}
	return buttons
}
