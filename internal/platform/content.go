package platform

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Caption limits per platform API.
const (
	CaptionLimitWithMedia = 1024
	CaptionLimitTextOnly  = 4096
	CaptionLimitInstagram = 2200
)

// TruncateCaption cuts text to limit runes, replacing the tail with
// "..." so the limit holds including the suffix.
func TruncateCaption(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}

// EncodeCallbackPayload packs a callback button value so the webhook
// can answer it without any server-side state.
func EncodeCallbackPayload(userID int64, text string) string {
	return fmt.Sprintf("user:%d|text:%s", userID, text)
}

// DecodeCallbackPayload is the inverse of EncodeCallbackPayload.
func DecodeCallbackPayload(payload string) (int64, string, bool) {
	rest, found := strings.CutPrefix(payload, "user:")
	if !found {
		return 0, "", false
	}
	idStr, text, found := strings.Cut(rest, "|text:")
	if !found {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, text, true
}

// IsPhoto classifies a media file by extension; everything that is not
// a known image format is treated as video.
func IsPhoto(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
