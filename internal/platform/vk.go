package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const vkAPIVersion = "5.199"

// VKAdapter posts to community walls. The destination is the positive
// community id; wall calls use the negative owner_id form.
type VKAdapter struct {
	apiBase string
	client  *http.Client
}

func NewVKAdapter(apiBase string) *VKAdapter {
	return &VKAdapter{
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *VKAdapter) Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error) {
	if creds.Token == "" {
		return "", errors.New("vk token not configured")
	}

	groupID, err := strconv.ParseInt(dest, 10, 64)
	if err != nil || groupID <= 0 {
		return "", fmt.Errorf("invalid vk group id %q", dest)
	}

	var attachments []string
	hasVideo := false
	for _, path := range content.MediaPaths {
		var att string
		if IsPhoto(path) {
			att, err = a.uploadWallPhoto(ctx, creds.Token, groupID, path)
		} else {
			att, err = a.uploadVideo(ctx, creds.Token, groupID, path)
			hasVideo = true
		}
		if err != nil {
			return "", err
		}
		attachments = append(attachments, att)
	}

	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(-groupID, 10))
	params.Set("from_group", "1")
	params.Set("message", content.Text)
	if len(attachments) > 0 {
		params.Set("attachments", strings.Join(attachments, ","))
	}
	if content.PublishAt != nil && content.PublishAt.After(time.Now()) {
		params.Set("publish_date", strconv.FormatInt(content.PublishAt.Unix(), 10))
	}
	// Carousel needs more than one attachment and no video among them
	if content.Layout == "carousel" && len(attachments) > 1 && !hasVideo {
		params.Set("primary_attachments_mode", "carousel")
	}

	var res struct {
		PostID int64 `json:"post_id"`
	}
	if err := a.call(ctx, creds.Token, "wall.post", params, &res); err != nil {
		return "", err
	}

	return strconv.FormatInt(res.PostID, 10), nil
}

func (a *VKAdapter) Delete(ctx context.Context, creds Credentials, dest, remoteID string) error {
	if creds.Token == "" {
		return errors.New("vk token not configured")
	}

	groupID, err := strconv.ParseInt(dest, 10, 64)
	if err != nil || groupID <= 0 {
		return fmt.Errorf("invalid vk group id %q", dest)
	}

	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(-groupID, 10))
	params.Set("post_id", remoteID)

	return a.call(ctx, creds.Token, "wall.delete", params, nil)
}

func (a *VKAdapter) uploadWallPhoto(ctx context.Context, token string, groupID int64, path string) (string, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))

	var srv struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.call(ctx, token, "photos.getWallUploadServer", params, &srv); err != nil {
		return "", err
	}

	var uploaded struct {
		Server int    `json:"server"`
		Photo  string `json:"photo"`
		Hash   string `json:"hash"`
	}
	if err := a.uploadFile(ctx, srv.UploadURL, "photo", path, &uploaded); err != nil {
		return "", fmt.Errorf("vk photo upload: %w", err)
	}

	saveParams := url.Values{}
	saveParams.Set("group_id", strconv.FormatInt(groupID, 10))
	saveParams.Set("server", strconv.Itoa(uploaded.Server))
	saveParams.Set("photo", uploaded.Photo)
	saveParams.Set("hash", uploaded.Hash)

	var saved []struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
	}
	if err := a.call(ctx, token, "photos.saveWallPhoto", saveParams, &saved); err != nil {
		return "", err
	}
	if len(saved) == 0 {
		return "", errors.New("vk photos.saveWallPhoto returned no photos")
	}

	return fmt.Sprintf("photo%d_%d", saved[0].OwnerID, saved[0].ID), nil
}

func (a *VKAdapter) uploadVideo(ctx context.Context, token string, groupID int64, path string) (string, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))
	params.Set("name", filepath.Base(path))

	var srv struct {
		UploadURL string `json:"upload_url"`
		VideoID   int64  `json:"video_id"`
		OwnerID   int64  `json:"owner_id"`
	}
	if err := a.call(ctx, token, "video.save", params, &srv); err != nil {
		return "", err
	}

	var uploaded struct {
		VideoID int64 `json:"video_id"`
	}
	if err := a.uploadFile(ctx, srv.UploadURL, "video_file", path, &uploaded); err != nil {
		return "", fmt.Errorf("vk video upload: %w", err)
	}

	return fmt.Sprintf("video%d_%d", srv.OwnerID, srv.VideoID), nil
}

func (a *VKAdapter) call(ctx context.Context, token, method string, params url.Values, out any) error {
	params.Set("access_token", token)
	params.Set("v", vkAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
		Error    *struct {
			Code    int    `json:"error_code"`
			Message string `json:"error_msg"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("vk %s: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if out != nil && len(envelope.Response) > 0 {
		if err := json.Unmarshal(envelope.Response, out); err != nil {
			return fmt.Errorf("vk %s: decode response: %w", method, err)
		}
	}

	return nil
}

func (a *VKAdapter) uploadFile(ctx context.Context, uploadURL, field, path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}
