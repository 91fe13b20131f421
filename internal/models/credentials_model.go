package models

import "time"

// Credentials holds one project's platform tokens. Token columns are
// stored AES-GCM encrypted; the token service owns decryption.
type Credentials struct {
	ID               int64      `db:"id"`
	ProjectID        int64      `db:"project_id"`
	TgToken          string     `db:"tg_token"`
	VkToken          string     `db:"vk_token"`
	VkRefreshToken   string     `db:"vk_refresh_token"`
	VkDeviceID       string     `db:"vk_device_id"`
	VkTokenExpiresAt *time.Time `db:"vk_token_expires_at"`
	OkToken          string     `db:"ok_token"`
	OkRefreshToken   string     `db:"ok_refresh_token"`
	OkTokenExpiresAt *time.Time `db:"ok_token_expires_at"`
	OkAppPubKey      string     `db:"ok_app_pub_key"`
	OkAppSecretKey   string     `db:"ok_app_secret_key"`
	IgToken          string     `db:"ig_token"`
	IgUserID         string     `db:"ig_user_id"`
	MaxToken         string     `db:"max_token"`
	UpdatedAt        time.Time  `db:"updated_at"`
}
