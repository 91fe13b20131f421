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
	"strings"
	"time"
)

// MaxAdapter talks to the Max bot API. It is the generic chat target:
// JSON in, JSON out, token in the query string.
type MaxAdapter struct {
	apiBase string
	client  *http.Client
}

func NewMaxAdapter(apiBase string) *MaxAdapter {
	return &MaxAdapter{
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *MaxAdapter) Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error) {
	if creds.Token == "" {
		return "", errors.New("max token not configured")
	}
	if dest == "" {
		return "", errors.New("max chat id not configured")
	}

	var attachments []map[string]any
	for _, path := range content.MediaPaths {
		if !IsPhoto(path) {
			continue
		}
		token, err := a.uploadImage(ctx, creds.Token, path)
		if err != nil {
			return "", err
		}
		attachments = append(attachments, map[string]any{
			"type":    "image",
			"payload": map[string]string{"token": token},
		})
	}

	if kb := maxKeyboard(content.Buttons); kb != nil {
		attachments = append(attachments, kb)
	}

	payload := map[string]any{
		"text": TruncateCaption(content.Text, CaptionLimitTextOnly),
	}
	if len(attachments) > 0 {
		payload["attachments"] = attachments
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("max payload encode: %w", err)
	}

	endpoint := fmt.Sprintf("%s/messages?chat_id=%s&access_token=%s",
		a.apiBase, url.QueryEscape(dest), url.QueryEscape(creds.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("max request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("max request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("max response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("max send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Message struct {
			Body struct {
				MID string `json:"mid"`
			} `json:"body"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("max response decode: %w", err)
	}
	if result.Message.Body.MID == "" {
		return "", errors.New("max returned no message id")
	}

	return result.Message.Body.MID, nil
}

func (a *MaxAdapter) Delete(ctx context.Context, creds Credentials, dest, remoteID string) error {
	if creds.Token == "" {
		return errors.New("max token not configured")
	}

	endpoint := fmt.Sprintf("%s/messages?message_id=%s&access_token=%s",
		a.apiBase, url.QueryEscape(remoteID), url.QueryEscape(creds.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("max request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("max request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("max delete: status %d", resp.StatusCode)
	}

	return nil
}

func (a *MaxAdapter) uploadImage(ctx context.Context, token, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/uploads?type=image&access_token=%s", a.apiBase, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("max upload url: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("max upload url: %w", err)
	}
	defer resp.Body.Close()

	var uploadInfo struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadInfo); err != nil {
		return "", fmt.Errorf("max upload url decode: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("data", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadInfo.URL, &buf)
	if err != nil {
		return "", err
	}
	uploadReq.Header.Set("Content-Type", w.FormDataContentType())

	uploadResp, err := a.client.Do(uploadReq)
	if err != nil {
		return "", fmt.Errorf("max image upload: %w", err)
	}
	defer uploadResp.Body.Close()

	var uploaded struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(uploadResp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("max image upload decode: %w", err)
	}
	if uploaded.Token == "" {
		return "", errors.New("max image upload returned no token")
	}

	return uploaded.Token, nil
}

func maxKeyboard(buttons []Button) map[string]any {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(buttons))
	for _, btn := range buttons {
		var b map[string]string
		if btn.URL != "" {
			b = map[string]string{"type": "link", "text": btn.Text, "url": btn.URL}
		} else {
			b = map[string]string{"type": "callback", "text": btn.Text, "payload": btn.Data}
		}
		rows = append(rows, []map[string]string{b})
	}
	return map[string]any{
		"type":    "inline_keyboard",
		"payload": map[string]any{"buttons": rows},
	}
}
