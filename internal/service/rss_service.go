package service

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mmcdole/gofeed"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/repository"
)

// maxEntriesPerPass caps how many entries one pass takes from a single
// feed so a huge backlog cannot flood the platforms.
const maxEntriesPerPass = 5

type RSSService interface {
	IngestAll(ctx context.Context) error
	IngestSource(ctx context.Context, source *models.RssSource) (int, error)
}

type rssService struct {
	sr        repository.RssSourceRepository
	pr        repository.PostRepository
	publisher Publisher
	parser    *gofeed.Parser
	client    *http.Client
	uploadDir string
}

func NewRSSService(
	sr repository.RssSourceRepository,
	pr repository.PostRepository,
	publisher Publisher,
	uploadDir string) RSSService {
	return &rssService{
		sr:        sr,
		pr:        pr,
		publisher: publisher,
		parser:    gofeed.NewParser(),
		client:    &http.Client{Timeout: 10 * time.Second},
		uploadDir: uploadDir,
	}
}

func (s *rssService) IngestAll(ctx context.Context) error {
	sources, err := s.sr.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.IngestSource(ctx, src); err != nil {
			// One broken feed never blocks the rest
			slog.Error(err.Error())
		}
	}

	return nil
}

// IngestSource runs one idempotent pass over a feed. Entries are
// collected newest-first until the cursor, then processed oldest-first
// with the cursor persisted after every entry.
func (s *rssService) IngestSource(ctx context.Context, source *models.RssSource) (int, error) {
	feed, err := s.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", source.URL, err)
	}

	var fresh []*gofeed.Item
	for _, item := range feed.Items {
		guid := itemGUID(item)
		if guid == "" {
			continue
		}
		if source.LastGUID != "" && guid == source.LastGUID {
			break
		}
		fresh = append(fresh, item)
		if source.LastGUID == "" {
			// First run establishes the cursor from the newest entry
			// instead of replaying the archive
			break
		}
	}
	if len(fresh) > maxEntriesPerPass {
		fresh = fresh[:maxEntriesPerPass]
	}

	created := 0
	for i := len(fresh) - 1; i >= 0; i-- {
		item := fresh[i]
		guid := itemGUID(item)

		if err := s.processEntry(ctx, source, item, guid); err != nil {
			// Cursor stays behind the failed entry; the next pass
			// retries from here
			return created, fmt.Errorf("process entry %s: %w", guid, err)
		}

		if err := s.sr.UpdateCursor(ctx, source.ID, guid); err != nil {
			return created, fmt.Errorf("advance cursor for source %d: %w", source.ID, err)
		}
		source.LastGUID = guid
		created++
	}

	return created, nil
}

func (s *rssService) processEntry(ctx context.Context, source *models.RssSource, item *gofeed.Item, guid string) error {
	exists, err := s.pr.ExistsBySourceGUID(ctx, source.ProjectID, guid)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	bodyHTML := item.Content
	if bodyHTML == "" {
		bodyHTML = item.Description
	}
	bodyText := sanitizeHTML(bodyHTML)

	var media models.StringList
	if name, ok := s.downloadImage(ctx, item, bodyHTML); ok {
		media = append(media, name)
	}

	post := &models.Post{
		ProjectID:    source.ProjectID,
		UserID:       source.UserID,
		Text:         buildRichText(title, item.Link, bodyText),
		TextPlain:    buildPlainText(title, item.Link, bodyText),
		MediaFiles:   media,
		PublishTg:    source.PublishTg,
		PublishVk:    source.PublishVk,
		PublishOk:    source.PublishOk,
		PublishIg:    source.PublishIg,
		PublishMax:   source.PublishMax,
		TgChatID:     source.TgChatID,
		VkGroupID:    source.VkGroupID,
		OkGroupID:    source.OkGroupID,
		MaxChatID:    source.MaxChatID,
		SourceGUID:   guid,
		Status:       models.PostStatusScheduled,
		PlatformInfo: models.JSONMap{},
	}

	postID, err := s.pr.Create(ctx, nil, post)
	if err != nil {
		return fmt.Errorf("create post for entry: %w", err)
	}

	// A publish failure lands on the post row itself; the entry still
	// counts as processed
	if err := s.publisher.Publish(ctx, postID); err != nil {
		slog.Error(err.Error())
	}

	return nil
}

func (s *rssService) downloadImage(ctx context.Context, item *gofeed.Item, bodyHTML string) (string, bool) {
	imgURL := ""
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			imgURL = enc.URL
			break
		}
	}
	if imgURL == "" && item.Image != nil {
		imgURL = item.Image.URL
	}
	if imgURL == "" {
		imgURL = firstImageSrc(bodyHTML)
	}
	if imgURL == "" {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return "", false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info(fmt.Sprintf("image fetch %s: status %d", imgURL, resp.StatusCode))
		return "", false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		slog.Info(err.Error())
		return "", false
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown || kind.MIME.Type != "image" {
		return "", false
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", false
	}
	name := id + "." + kind.Extension

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		slog.Info(err.Error())
		return "", false
	}
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		slog.Info(err.Error())
		return "", false
	}

	return name, true
}

func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// sanitizeHTML strips markup down to readable text.
func sanitizeHTML(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstImageSrc(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

func buildRichText(title, link, body string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("<b>" + html.EscapeString(title) + "</b>\n\n")
	}
	if body != "" {
		sb.WriteString(html.EscapeString(body) + "\n\n")
	}
	if link != "" {
		sb.WriteString(link)
	}
	return strings.TrimSpace(sb.String())
}

func buildPlainText(title, link, body string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(title + "\n\n")
	}
	if body != "" {
		sb.WriteString(body + "\n\n")
	}
	if link != "" {
		sb.WriteString(link)
	}
	return strings.TrimSpace(sb.String())
}
