package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/postline/postline/internal/models"
)

type fakeSourceRepo struct {
	mu      sync.Mutex
	sources map[int64]*models.RssSource
	cursors []string
}

func newFakeSourceRepo(sources ...*models.RssSource) *fakeSourceRepo {
	r := &fakeSourceRepo{sources: make(map[int64]*models.RssSource)}
	for _, s := range sources {
		r.sources[s.ID] = s
	}
	return r
}

func (r *fakeSourceRepo) GetByID(ctx context.Context, id int64) (*models.RssSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[id], nil
}

func (r *fakeSourceRepo) Create(ctx context.Context, source *models.RssSource) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source.ID = int64(len(r.sources) + 1)
	r.sources[source.ID] = source
	return source.ID, nil
}

func (r *fakeSourceRepo) ListActive(ctx context.Context) ([]*models.RssSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RssSource
	for _, s := range r.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.RssSource, error) {
	return nil, nil
}

func (r *fakeSourceRepo) CheckByUserID(ctx context.Context, sourceID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[sourceID]
	return ok && s.UserID == userID, nil
}

func (r *fakeSourceRepo) UpdateCursor(ctx context.Context, id int64, guid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sources[id]; ok {
		s.LastGUID = guid
	}
	r.cursors = append(r.cursors, guid)
	return nil
}

func (r *fakeSourceRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, id)
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	postIDs []int64
}

func (p *fakePublisher) Publish(ctx context.Context, postID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postIDs = append(p.postIDs, postID)
	return nil
}

// serveFeed returns a server with the given entry guids, newest first.
func serveFeed(t *testing.T, guids ...string) *httptest.Server {
	t.Helper()
	var items strings.Builder
	for _, g := range guids {
		fmt.Fprintf(&items, `
		<item>
			<title>Entry %[1]s</title>
			<link>https://blog.example/%[1]s</link>
			<guid>%[1]s</guid>
			<description>Body of %[1]s</description>
		</item>`, g)
	}
	body := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
	<channel>
		<title>Test feed</title>
		<link>https://blog.example</link>` + items.String() + `
	</channel>
</rss>`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
}

func testSource(url string) *models.RssSource {
	return &models.RssSource{
		ID:        1,
		ProjectID: 10,
		UserID:    1,
		Name:      "blog",
		URL:       url,
		Active:    true,
		PublishTg: true,
		TgChatID:  "@chan",
	}
}

func TestIngestFirstRunTakesNewestOnly(t *testing.T) {
	server := serveFeed(t, "g3", "g2", "g1")
	defer server.Close()

	pr := newFakePostRepo()
	pub := &fakePublisher{}
	sr := newFakeSourceRepo()
	svc := NewRSSService(sr, pr, pub, t.TempDir())

	source := testSource(server.URL)
	created, err := svc.IngestSource(context.Background(), source)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if source.LastGUID != "g3" {
		t.Errorf("cursor = %q, want g3", source.LastGUID)
	}

	posts, _ := pr.GetByUserID(context.Background(), 1)
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	post := posts[0]
	if post.SourceGUID != "g3" {
		t.Errorf("source_guid = %q, want g3", post.SourceGUID)
	}
	if !post.PublishTg || post.TgChatID != "@chan" {
		t.Error("platform targets not copied from the source")
	}
	if !strings.Contains(post.Text, "<b>Entry g3</b>") {
		t.Errorf("rich text missing bold title: %q", post.Text)
	}
	if !strings.Contains(post.Text, "https://blog.example/g3") {
		t.Errorf("rich text missing link: %q", post.Text)
	}
	if strings.Contains(post.TextPlain, "<b>") {
		t.Errorf("plain text carries markup: %q", post.TextPlain)
	}
	if len(pub.postIDs) != 1 {
		t.Errorf("published %d posts, want 1", len(pub.postIDs))
	}
}

func TestIngestSecondPassFindsNothing(t *testing.T) {
	server := serveFeed(t, "g3", "g2", "g1")
	defer server.Close()

	pr := newFakePostRepo()
	sr := newFakeSourceRepo()
	svc := NewRSSService(sr, pr, &fakePublisher{}, t.TempDir())

	source := testSource(server.URL)
	source.LastGUID = "g3"

	created, err := svc.IngestSource(context.Background(), source)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if source.LastGUID != "g3" {
		t.Errorf("cursor moved to %q", source.LastGUID)
	}
}

func TestIngestProcessesOldestFirstUpToCursor(t *testing.T) {
	server := serveFeed(t, "g5", "g4", "g3", "g2", "g1")
	defer server.Close()

	pr := newFakePostRepo()
	pub := &fakePublisher{}
	sr := newFakeSourceRepo()
	svc := NewRSSService(sr, pr, pub, t.TempDir())

	source := testSource(server.URL)
	source.LastGUID = "g3"
	sr.sources[source.ID] = source

	created, err := svc.IngestSource(context.Background(), source)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	if source.LastGUID != "g5" {
		t.Errorf("cursor = %q, want g5", source.LastGUID)
	}
	if want := []string{"g4", "g5"}; len(sr.cursors) != 2 || sr.cursors[0] != want[0] || sr.cursors[1] != want[1] {
		t.Errorf("cursor advances = %v, want %v", sr.cursors, want)
	}
}

func TestIngestCapsBacklog(t *testing.T) {
	server := serveFeed(t, "g9", "g8", "g7", "g6", "g5", "g4", "g3", "g2")
	defer server.Close()

	pr := newFakePostRepo()
	sr := newFakeSourceRepo()
	svc := NewRSSService(sr, pr, &fakePublisher{}, t.TempDir())

	// Cursor points at an entry that fell off the feed, so every entry
	// counts as fresh
	source := testSource(server.URL)
	source.LastGUID = "g0"
	sr.sources[source.ID] = source

	created, err := svc.IngestSource(context.Background(), source)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if created != maxEntriesPerPass {
		t.Errorf("created = %d, want %d", created, maxEntriesPerPass)
	}
	if source.LastGUID != "g9" {
		t.Errorf("cursor = %q, want g9", source.LastGUID)
	}
}

func TestIngestSkipsExistingGUID(t *testing.T) {
	server := serveFeed(t, "g2", "g1")
	defer server.Close()

	pr := newFakePostRepo()
	// The entry already exists, e.g. written by a concurrent instance
	pr.add(&models.Post{ProjectID: 10, UserID: 1, SourceGUID: "g2"})

	pub := &fakePublisher{}
	sr := newFakeSourceRepo()
	svc := NewRSSService(sr, pr, pub, t.TempDir())

	source := testSource(server.URL)
	source.LastGUID = "g1"
	sr.sources[source.ID] = source

	if _, err := svc.IngestSource(context.Background(), source); err != nil {
		t.Fatalf("IngestSource: %v", err)
	}

	posts, _ := pr.GetByUserID(context.Background(), 1)
	if len(posts) != 1 {
		t.Errorf("got %d posts, want 1 (no duplicate)", len(posts))
	}
	if len(pub.postIDs) != 0 {
		t.Errorf("published %d posts, want 0", len(pub.postIDs))
	}
	if source.LastGUID != "g2" {
		t.Errorf("cursor = %q, want g2 (advances past duplicates)", source.LastGUID)
	}
}

func TestSanitizeHTML(t *testing.T) {
	raw := `<p>Hello   <b>world</b></p><script>alert(1)</script><style>p{}</style>`
	got := sanitizeHTML(raw)
	if got != "Hello world" {
		t.Errorf("sanitizeHTML = %q, want %q", got, "Hello world")
	}
}

func TestFirstImageSrc(t *testing.T) {
	raw := `<p>text</p><img src="https://img.example/a.jpg"><img src="https://img.example/b.jpg">`
	if got := firstImageSrc(raw); got != "https://img.example/a.jpg" {
		t.Errorf("firstImageSrc = %q", got)
	}
	if got := firstImageSrc("<p>no image</p>"); got != "" {
		t.Errorf("firstImageSrc(no image) = %q, want empty", got)
	}
}
