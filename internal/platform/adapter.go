package platform

import (
	"context"
	"errors"
	"time"
)

// Platform names used for flags, limiter buckets and error prefixes.
const (
	Telegram  = "tg"
	VK        = "vk"
	OK        = "ok"
	Instagram = "ig"
	Max       = "max"
)

// ErrUnsupported is returned by Delete on platforms whose API has no
// removal call. Callers treat deletes as best-effort.
var ErrUnsupported = errors.New("operation not supported by platform")

// Credentials carries one project's decrypted secrets for a single
// platform call.
type Credentials struct {
	Token     string
	AccountID string // Instagram business account id
	AppKey    string // OK application public key
	AppSecret string // OK application secret key
}

type Button struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// Content is the platform-neutral payload. MediaPaths keeps composer
// order; adapters must preserve it.
type Content struct {
	Text       string
	MediaPaths []string
	Buttons    []Button
	Layout     string     // VK wall layout hint ("carousel")
	PublishAt  *time.Time // VK native server-side scheduling
}

// Adapter is the closed per-platform contract. Send returns the
// platform-native id of the created object. Implementations never
// panic; every failure comes back as an error.
type Adapter interface {
	Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error)
	Delete(ctx context.Context, creds Credentials, dest, remoteID string) error
}
