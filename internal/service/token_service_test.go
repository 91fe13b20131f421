package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cfg "github.com/postline/postline/configs"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/pkg/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeCredsRepo struct {
	mu    sync.Mutex
	creds map[int64]*models.Credentials
}

func newFakeCredsRepo(c *models.Credentials) *fakeCredsRepo {
	return &fakeCredsRepo{creds: map[int64]*models.Credentials{c.ProjectID: c}}
}

func (r *fakeCredsRepo) GetByProjectID(ctx context.Context, projectID int64) (*models.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[projectID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCredsRepo) SetVkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[projectID]; ok {
		c.VkToken = token
		c.VkRefreshToken = refreshToken
		c.VkTokenExpiresAt = &expiresAt
	}
	return nil
}

func (r *fakeCredsRepo) SetOkToken(ctx context.Context, projectID int64, token, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[projectID]; ok {
		c.OkToken = token
		c.OkRefreshToken = refreshToken
		c.OkTokenExpiresAt = &expiresAt
	}
	return nil
}

func (r *fakeCredsRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Credentials
	for _, c := range r.creds {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func encryptT(t *testing.T, plaintext string) string {
	t.Helper()
	enc, err := crypto.Encrypt([]byte(plaintext), []byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

func TestResolveTelegram(t *testing.T) {
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID: 10,
		TgToken:   encryptT(t, "bot123:abc"),
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret}, repo)

	creds, err := ts.Resolve(context.Background(), 10, platform.Telegram)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.Token != "bot123:abc" {
		t.Errorf("token = %q, want bot123:abc", creds.Token)
	}
}

func TestResolveTelegramMissing(t *testing.T) {
	repo := newFakeCredsRepo(&models.Credentials{ProjectID: 10})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret}, repo)

	if _, err := ts.Resolve(context.Background(), 10, platform.Telegram); err == nil {
		t.Error("Resolve with no token succeeded, want error")
	}
}

func TestResolveVkFreshTokenSkipsRefresh(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	expires := time.Now().Add(time.Hour)
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID:        10,
		VkToken:          encryptT(t, "vk-live"),
		VkRefreshToken:   encryptT(t, "vk-refresh"),
		VkDeviceID:       "dev1",
		VkTokenExpiresAt: &expires,
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret, VKTokenURL: server.URL, VKAppID: "app1"}, repo)

	creds, err := ts.Resolve(context.Background(), 10, platform.VK)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.Token != "vk-live" {
		t.Errorf("token = %q, want vk-live", creds.Token)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("refresh endpoint called %d times, want 0", n)
	}
}

func TestResolveVkRefreshesExpiredToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostFormValue("refresh_token"); got != "vk-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostFormValue("device_id"); got != "dev1" {
			t.Errorf("device_id = %q", got)
		}
		if got := r.PostFormValue("client_id"); got != "app1" {
			t.Errorf("client_id = %q", got)
		}
		if r.PostFormValue("state") == "" {
			t.Error("state is empty")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "vk-new",
			"refresh_token": "vk-refresh-new",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	expires := time.Now().Add(-time.Second)
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID:        10,
		VkToken:          encryptT(t, "vk-old"),
		VkRefreshToken:   encryptT(t, "vk-refresh"),
		VkDeviceID:       "dev1",
		VkTokenExpiresAt: &expires,
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret, VKTokenURL: server.URL, VKAppID: "app1"}, repo)

	creds, err := ts.Resolve(context.Background(), 10, platform.VK)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.Token != "vk-new" {
		t.Errorf("token = %q, want vk-new", creds.Token)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", n)
	}

	stored, _ := repo.GetByProjectID(context.Background(), 10)
	if got := crypto.DecryptOrEmpty(stored.VkToken, []byte(testSecret)); got != "vk-new" {
		t.Errorf("stored token decrypts to %q, want vk-new", got)
	}
	if got := crypto.DecryptOrEmpty(stored.VkRefreshToken, []byte(testSecret)); got != "vk-refresh-new" {
		t.Errorf("stored refresh token decrypts to %q, want vk-refresh-new", got)
	}
	if stored.VkTokenExpiresAt == nil || !stored.VkTokenExpiresAt.After(time.Now()) {
		t.Error("stored expiry not in the future")
	}
}

func TestResolveVkNoSession(t *testing.T) {
	expires := time.Now().Add(-time.Second)
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID:        10,
		VkToken:          encryptT(t, "vk-old"),
		VkTokenExpiresAt: &expires,
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret, VKTokenURL: "http://127.0.0.1:0"}, repo)

	_, err := ts.Resolve(context.Background(), 10, platform.VK)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestResolveVkRefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})
	}))
	defer server.Close()

	expires := time.Now().Add(-time.Second)
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID:        10,
		VkRefreshToken:   encryptT(t, "vk-refresh"),
		VkDeviceID:       "dev1",
		VkTokenExpiresAt: &expires,
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret, VKTokenURL: server.URL, VKAppID: "app1"}, repo)

	_, err := ts.Resolve(context.Background(), 10, platform.VK)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestEnsureFreshUsesWiderWindow(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "vk-new",
			"refresh_token": "vk-refresh-new",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	// Expires in 20 minutes: outside the publish-time margin, inside the
	// sweep window
	expires := time.Now().Add(20 * time.Minute)
	repo := newFakeCredsRepo(&models.Credentials{
		ProjectID:        10,
		VkToken:          encryptT(t, "vk-live"),
		VkRefreshToken:   encryptT(t, "vk-refresh"),
		VkDeviceID:       "dev1",
		VkTokenExpiresAt: &expires,
	})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret, VKTokenURL: server.URL, VKAppID: "app1"}, repo)

	if err := ts.EnsureFresh(context.Background(), 10, platform.VK, 30*time.Minute); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", n)
	}
}

func TestResolveUnknownPlatform(t *testing.T) {
	repo := newFakeCredsRepo(&models.Credentials{ProjectID: 10})
	ts := NewTokenService(cfg.Config{SecretKey: testSecret}, repo)

	if _, err := ts.Resolve(context.Background(), 10, "myspace"); err == nil {
		t.Error("Resolve of unknown platform succeeded, want error")
	}
}
