package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// URLResolver turns a local media path into a publicly reachable URL.
// The Graph API only accepts URL-addressable media.
type URLResolver interface {
	PublicURL(ctx context.Context, localPath string) (string, error)
}

// InstagramAdapter drives the two-step media container + publish flow.
type InstagramAdapter struct {
	apiBase string
	client  *http.Client
	media   URLResolver
}

func NewInstagramAdapter(apiBase string, media URLResolver) *InstagramAdapter {
	return &InstagramAdapter{
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		media:   media,
	}
}

func (a *InstagramAdapter) Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error) {
	if creds.Token == "" {
		return "", errors.New("instagram token not configured")
	}
	accountID := creds.AccountID
	if accountID == "" {
		accountID = dest
	}
	if accountID == "" {
		return "", errors.New("instagram account id not configured")
	}

	var images []string
	for _, path := range content.MediaPaths {
		if IsPhoto(path) {
			images = append(images, path)
		}
	}
	if len(images) == 0 {
		return "", errors.New("instagram requires at least one image")
	}

	caption := TruncateCaption(content.Text, CaptionLimitInstagram)

	var creationID string
	var err error
	if len(images) == 1 {
		publicURL, urlErr := a.media.PublicURL(ctx, images[0])
		if urlErr != nil {
			return "", fmt.Errorf("instagram media url: %w", urlErr)
		}
		creationID, err = a.createContainer(ctx, creds.Token, accountID, url.Values{
			"image_url": {publicURL},
			"caption":   {caption},
		})
	} else {
		creationID, err = a.createCarousel(ctx, creds.Token, accountID, images, caption)
	}
	if err != nil {
		return "", err
	}

	mediaID, err := a.publish(ctx, creds.Token, accountID, creationID)
	if err != nil {
		return "", err
	}

	return mediaID, nil
}

// Delete is unsupported: the Graph API has no removal call for
// published media.
func (a *InstagramAdapter) Delete(ctx context.Context, creds Credentials, dest, remoteID string) error {
	return ErrUnsupported
}

func (a *InstagramAdapter) createCarousel(ctx context.Context, token, accountID string, images []string, caption string) (string, error) {
	children := make([]string, 0, len(images))
	for _, path := range images {
		publicURL, err := a.media.PublicURL(ctx, path)
		if err != nil {
			return "", fmt.Errorf("instagram media url: %w", err)
		}
		childID, err := a.createContainer(ctx, token, accountID, url.Values{
			"image_url":        {publicURL},
			"is_carousel_item": {"true"},
		})
		if err != nil {
			return "", err
		}
		children = append(children, childID)
	}

	return a.createContainer(ctx, token, accountID, url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
		"caption":    {caption},
	})
}

func (a *InstagramAdapter) createContainer(ctx context.Context, token, accountID string, params url.Values) (string, error) {
	return a.graphCall(ctx, fmt.Sprintf("%s/%s/media", a.apiBase, accountID), token, params)
}

func (a *InstagramAdapter) publish(ctx context.Context, token, accountID, creationID string) (string, error) {
	return a.graphCall(ctx, fmt.Sprintf("%s/%s/media_publish", a.apiBase, accountID), token, url.Values{
		"creation_id": {creationID},
	})
}

func (a *InstagramAdapter) graphCall(ctx context.Context, endpoint, token string, params url.Values) (string, error) {
	params.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("instagram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instagram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("instagram response: %w", err)
	}

	var result struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("instagram response decode: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("instagram: %s (code %d)", result.Error.Message, result.Error.Code)
	}
	if result.ID == "" {
		return "", errors.New("instagram returned no media id")
	}

	return result.ID, nil
}
