package platform

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OKAdapter publishes group media topics through the signed REST API.
type OKAdapter struct {
	apiBase string
	client  *http.Client
}

func NewOKAdapter(apiBase string) *OKAdapter {
	return &OKAdapter{
		apiBase: apiBase,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *OKAdapter) Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error) {
	if creds.Token == "" {
		return "", errors.New("ok token not configured")
	}
	if creds.AppKey == "" || creds.AppSecret == "" {
		return "", errors.New("ok application keys not configured")
	}

	media := []map[string]any{
		{"type": "text", "text": content.Text},
	}

	var photos []string
	for _, path := range content.MediaPaths {
		if IsPhoto(path) {
			photos = append(photos, path)
		}
	}
	if len(photos) > 0 {
		tokens, err := a.uploadPhotos(ctx, creds, dest, photos)
		if err != nil {
			return "", err
		}
		list := make([]map[string]string, 0, len(tokens))
		for _, t := range tokens {
			list = append(list, map[string]string{"id": t})
		}
		media = append(media, map[string]any{"type": "photo", "list": list})
	}

	attachment, err := json.Marshal(map[string]any{"media": media})
	if err != nil {
		return "", fmt.Errorf("ok attachment encode: %w", err)
	}

	body, err := a.call(ctx, creds, map[string]string{
		"method":     "mediatopic.post",
		"gid":        dest,
		"type":       "GROUP_THEME",
		"attachment": string(attachment),
	})
	if err != nil {
		return "", err
	}

	// mediatopic.post answers with the bare topic id
	topicID := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if topicID == "" {
		return "", errors.New("ok mediatopic.post returned empty topic id")
	}

	return topicID, nil
}

func (a *OKAdapter) Delete(ctx context.Context, creds Credentials, dest, remoteID string) error {
	return ErrUnsupported
}

func (a *OKAdapter) uploadPhotos(ctx context.Context, creds Credentials, groupID string, paths []string) ([]string, error) {
	body, err := a.call(ctx, creds, map[string]string{
		"method": "photosV2.getUploadUrl",
		"gid":    groupID,
		"count":  fmt.Sprintf("%d", len(paths)),
	})
	if err != nil {
		return nil, err
	}

	var uploadInfo struct {
		UploadURL string   `json:"upload_url"`
		PhotoIDs  []string `json:"photo_ids"`
	}
	if err := json.Unmarshal(body, &uploadInfo); err != nil {
		return nil, fmt.Errorf("ok upload url decode: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		part, err := w.CreateFormFile(fmt.Sprintf("pic%d", i+1), filepath.Base(path))
		if err != nil {
			f.Close()
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadInfo.UploadURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ok photo upload: %w", err)
	}
	defer resp.Body.Close()

	var uploaded struct {
		Photos map[string]struct {
			Token string `json:"token"`
		} `json:"photos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("ok photo upload decode: %w", err)
	}

	// Tokens come back keyed by photo id; keep the requested order
	var tokens []string
	for _, id := range uploadInfo.PhotoIDs {
		if p, ok := uploaded.Photos[id]; ok {
			tokens = append(tokens, p.Token)
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("ok photo upload returned no tokens")
	}

	return tokens, nil
}

func (a *OKAdapter) call(ctx context.Context, creds Credentials, params map[string]string) (json.RawMessage, error) {
	params["application_key"] = creds.AppKey
	params["format"] = "json"

	sessionSecret := md5hex(creds.Token + creds.AppSecret)
	params["sig"] = signParams(params, sessionSecret)
	params["access_token"] = creds.Token

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ok %s: %w", params["method"], err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ok %s: %w", params["method"], err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ok %s: %w", params["method"], err)
	}

	var apiErr struct {
		ErrorCode int    `json:"error_code"`
		ErrorMsg  string `json:"error_msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorCode != 0 {
		return nil, fmt.Errorf("ok %s: %s (code %d)", params["method"], apiErr.ErrorMsg, apiErr.ErrorCode)
	}

	return body, nil
}

// signParams computes the OK request signature: md5 of the sorted
// "key=value" concatenation followed by the session secret. The
// access_token itself never participates in the signed string.
func signParams(params map[string]string, sessionSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	sb.WriteString(sessionSecret)

	return md5hex(sb.String())
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
