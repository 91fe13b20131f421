package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringList is a JSON-encoded text column holding an ordered list of
// media file names.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return errors.New("unsupported type for StringList")
}

// JSONMap is a JSON-encoded text column. Used for platform_info, where
// keys are only ever added, never removed.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return errors.New("unsupported type for JSONMap")
}

type Post struct {
	ID           int64      `db:"id" json:"id"`
	ProjectID    int64      `db:"project_id" json:"project_id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	Text         string     `db:"text" json:"text"`
	TextPlain    string     `db:"text_plain" json:"text_plain"`
	MediaFiles   StringList `db:"media_files" json:"media_files"`
	PublishTg    bool       `db:"publish_tg" json:"publish_tg"`
	PublishVk    bool       `db:"publish_vk" json:"publish_vk"`
	PublishOk    bool       `db:"publish_ok" json:"publish_ok"`
	PublishIg    bool       `db:"publish_ig" json:"publish_ig"`
	PublishMax   bool       `db:"publish_max" json:"publish_max"`
	TgChatID     string     `db:"tg_chat_id" json:"tg_chat_id"`
	VkGroupID    int64      `db:"vk_group_id" json:"vk_group_id"`
	OkGroupID    string     `db:"ok_group_id" json:"ok_group_id"`
	MaxChatID    string     `db:"max_chat_id" json:"max_chat_id"`
	VkLayout     string     `db:"vk_layout" json:"vk_layout"`
	SourceGUID   string     `db:"source_guid" json:"source_guid"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage string     `db:"error_message" json:"error_message"`
	PlatformInfo JSONMap    `db:"platform_info" json:"platform_info"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusPartial    = "partial"
	PostStatusFailed     = "failed"
)

// platform_info keys written by the adapters
const (
	InfoKeyTgMsgID   = "tg_msg_id"
	InfoKeyVkPostID  = "vk_post_id"
	InfoKeyOkTopicID = "ok_topic_id"
	InfoKeyIgMediaID = "ig_media_id"
	InfoKeyMaxMsgID  = "max_msg_id"
	InfoKeyButtons   = "buttons"
)
