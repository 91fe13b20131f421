package models

import "time"

type RssSource struct {
	ID         int64     `db:"id" json:"id"`
	ProjectID  int64     `db:"project_id" json:"project_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	URL        string    `db:"url" json:"url"`
	Active     bool      `db:"active" json:"active"`
	PublishTg  bool      `db:"publish_tg" json:"publish_tg"`
	PublishVk  bool      `db:"publish_vk" json:"publish_vk"`
	PublishOk  bool      `db:"publish_ok" json:"publish_ok"`
	PublishIg  bool      `db:"publish_ig" json:"publish_ig"`
	PublishMax bool      `db:"publish_max" json:"publish_max"`
	TgChatID   string    `db:"tg_chat_id" json:"tg_chat_id"`
	VkGroupID  int64     `db:"vk_group_id" json:"vk_group_id"`
	OkGroupID  string    `db:"ok_group_id" json:"ok_group_id"`
	MaxChatID  string    `db:"max_chat_id" json:"max_chat_id"`
	LastGUID   string    `db:"last_guid" json:"last_guid"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
