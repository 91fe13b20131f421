package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postline/postline/configs"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/pkg/crypto"
	"golang.org/x/oauth2"
)

// ErrNoSession means the stored refresh credentials are unusable and
// the project owner has to authorize the platform again.
var ErrNoSession = errors.New("no valid session, authorize the platform again")

// refreshMargin keeps adapter calls away from tokens about to expire.
const refreshMargin = 5 * time.Minute

// TokenService hands decrypted, refresh-fresh credentials to the
// adapters. VK and OK tokens are refreshed transparently when their
// expiry falls within the margin.
type TokenService interface {
	Resolve(ctx context.Context, projectID int64, platformName string) (platform.Credentials, error)
	EnsureFresh(ctx context.Context, projectID int64, platformName string, within time.Duration) error
}

type tokenService struct {
	cfg    cfg.Config
	cr     repository.CredentialsRepository
	client *http.Client

	mu     sync.Mutex
	guards map[string]*sync.Mutex
}

func NewTokenService(cfg cfg.Config, cr repository.CredentialsRepository) TokenService {
	return &tokenService{
		cfg:    cfg,
		cr:     cr,
		client: &http.Client{Timeout: 10 * time.Second},
		guards: make(map[string]*sync.Mutex),
	}
}

func (s *tokenService) Resolve(ctx context.Context, projectID int64, platformName string) (platform.Credentials, error) {
	creds, err := s.cr.GetByProjectID(ctx, projectID)
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("load credentials for project %d: %w", projectID, err)
	}
	if creds == nil {
		return platform.Credentials{}, errors.New("credentials not configured for project")
	}

	key := []byte(s.cfg.SecretKey)

	switch platformName {
	case platform.Telegram:
		token := crypto.DecryptOrEmpty(creds.TgToken, key)
		if token == "" {
			return platform.Credentials{}, errors.New("telegram token not configured")
		}
		return platform.Credentials{Token: token}, nil

	case platform.Max:
		token := crypto.DecryptOrEmpty(creds.MaxToken, key)
		if token == "" {
			return platform.Credentials{}, errors.New("max token not configured")
		}
		return platform.Credentials{Token: token}, nil

	case platform.Instagram:
		token := crypto.DecryptOrEmpty(creds.IgToken, key)
		if token == "" {
			return platform.Credentials{}, errors.New("instagram token not configured")
		}
		return platform.Credentials{Token: token, AccountID: creds.IgUserID}, nil

	case platform.VK:
		if !expiresWithin(creds.VkTokenExpiresAt, refreshMargin) {
			token := crypto.DecryptOrEmpty(creds.VkToken, key)
			if token == "" {
				return platform.Credentials{}, errors.New("vk token not configured")
			}
			return platform.Credentials{Token: token}, nil
		}
		return s.refreshVk(ctx, projectID, refreshMargin)

	case platform.OK:
		if !expiresWithin(creds.OkTokenExpiresAt, refreshMargin) {
			token := crypto.DecryptOrEmpty(creds.OkToken, key)
			if token == "" {
				return platform.Credentials{}, errors.New("ok token not configured")
			}
			return s.okCredentials(creds, token), nil
		}
		return s.refreshOk(ctx, projectID, refreshMargin)
	}

	return platform.Credentials{}, fmt.Errorf("unknown platform %q", platformName)
}

// EnsureFresh refreshes a refreshable token whose expiry falls inside
// the given window. Used by the sweep job with a wider window than the
// publish-time margin.
func (s *tokenService) EnsureFresh(ctx context.Context, projectID int64, platformName string, within time.Duration) error {
	creds, err := s.cr.GetByProjectID(ctx, projectID)
	if err != nil {
		return err
	}
	if creds == nil {
		return errors.New("credentials not configured for project")
	}

	switch platformName {
	case platform.VK:
		if expiresWithin(creds.VkTokenExpiresAt, within) {
			_, err := s.refreshVk(ctx, projectID, within)
			return err
		}
	case platform.OK:
		if expiresWithin(creds.OkTokenExpiresAt, within) {
			_, err := s.refreshOk(ctx, projectID, within)
			return err
		}
	}

	return nil
}

func (s *tokenService) okCredentials(creds *models.Credentials, token string) platform.Credentials {
	return platform.Credentials{
		Token:     token,
		AppKey:    creds.OkAppPubKey,
		AppSecret: crypto.DecryptOrEmpty(creds.OkAppSecretKey, []byte(s.cfg.SecretKey)),
	}
}

// guard serializes refreshes per project and platform. Concurrent
// publishes share one refresh; last successful writer wins.
func (s *tokenService) guard(projectID int64, platformName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fmt.Sprintf("%d/%s", projectID, platformName)
	g, ok := s.guards[k]
	if !ok {
		g = &sync.Mutex{}
		s.guards[k] = g
	}
	return g
}

func (s *tokenService) refreshVk(ctx context.Context, projectID int64, margin time.Duration) (platform.Credentials, error) {
	g := s.guard(projectID, platform.VK)
	g.Lock()
	defer g.Unlock()

	// Re-read under the guard: a racing caller may have refreshed
	creds, err := s.cr.GetByProjectID(ctx, projectID)
	if err != nil {
		return platform.Credentials{}, err
	}
	if creds == nil {
		return platform.Credentials{}, errors.New("credentials not configured for project")
	}

	key := []byte(s.cfg.SecretKey)
	if !expiresWithin(creds.VkTokenExpiresAt, margin) {
		if token := crypto.DecryptOrEmpty(creds.VkToken, key); token != "" {
			return platform.Credentials{Token: token}, nil
		}
	}

	refreshToken := crypto.DecryptOrEmpty(creds.VkRefreshToken, key)
	if refreshToken == "" || creds.VkDeviceID == "" {
		return platform.Credentials{}, fmt.Errorf("vk refresh: %w", ErrNoSession)
	}

	state, err := gonanoid.New()
	if err != nil {
		return platform.Credentials{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", s.cfg.VKAppID)
	form.Set("device_id", creds.VkDeviceID)
	form.Set("state", state)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.VKTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("vk refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("vk refresh request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return platform.Credentials{}, fmt.Errorf("vk refresh decode: %w", err)
	}
	if result.Error != "" || result.AccessToken == "" {
		return platform.Credentials{}, fmt.Errorf("vk refresh: %s: %w", result.ErrorDescription, ErrNoSession)
	}

	newRefresh := result.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)

	encToken, err := crypto.Encrypt([]byte(result.AccessToken), key)
	if err != nil {
		return platform.Credentials{}, err
	}
	encRefresh, err := crypto.Encrypt([]byte(newRefresh), key)
	if err != nil {
		return platform.Credentials{}, err
	}

	if err := s.cr.SetVkToken(ctx, projectID, encToken, encRefresh, expiresAt); err != nil {
		return platform.Credentials{}, fmt.Errorf("store vk token: %w", err)
	}

	return platform.Credentials{Token: result.AccessToken}, nil
}

func (s *tokenService) refreshOk(ctx context.Context, projectID int64, margin time.Duration) (platform.Credentials, error) {
	g := s.guard(projectID, platform.OK)
	g.Lock()
	defer g.Unlock()

	creds, err := s.cr.GetByProjectID(ctx, projectID)
	if err != nil {
		return platform.Credentials{}, err
	}
	if creds == nil {
		return platform.Credentials{}, errors.New("credentials not configured for project")
	}

	key := []byte(s.cfg.SecretKey)
	if !expiresWithin(creds.OkTokenExpiresAt, margin) {
		if token := crypto.DecryptOrEmpty(creds.OkToken, key); token != "" {
			return s.okCredentials(creds, token), nil
		}
	}

	refreshToken := crypto.DecryptOrEmpty(creds.OkRefreshToken, key)
	if refreshToken == "" {
		return platform.Credentials{}, fmt.Errorf("ok refresh: %w", ErrNoSession)
	}

	conf := &oauth2.Config{
		ClientID:     creds.OkAppPubKey,
		ClientSecret: crypto.DecryptOrEmpty(creds.OkAppSecretKey, key),
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.cfg.OKTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := conf.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("ok refresh: %v: %w", err, ErrNoSession)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(30 * time.Minute)
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	encToken, err := crypto.Encrypt([]byte(tok.AccessToken), key)
	if err != nil {
		return platform.Credentials{}, err
	}
	encRefresh, err := crypto.Encrypt([]byte(newRefresh), key)
	if err != nil {
		return platform.Credentials{}, err
	}

	if err := s.cr.SetOkToken(ctx, projectID, encToken, encRefresh, expiresAt); err != nil {
		return platform.Credentials{}, fmt.Errorf("store ok token: %w", err)
	}

	return s.okCredentials(creds, tok.AccessToken), nil
}

func expiresWithin(expiresAt *time.Time, margin time.Duration) bool {
	if expiresAt == nil {
		// No expiry recorded means a long-lived token
		return false
	}
	return !expiresAt.After(time.Now().Add(margin))
}
