package transfer

// ButtonInput is a (display text, value) pair from the composer. Values
// starting with http become URL buttons, anything else becomes a
// callback button.
type ButtonInput struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

type PostCreation struct {
	Text        string        `json:"text"`
	TextPlain   string        `json:"text_plain"`
	MediaFiles  []string      `json:"media_files"`
	PublishTg   bool          `json:"publish_tg"`
	PublishVk   bool          `json:"publish_vk"`
	PublishOk   bool          `json:"publish_ok"`
	PublishIg   bool          `json:"publish_ig"`
	PublishMax  bool          `json:"publish_max"`
	TgChatID    string        `json:"tg_chat_id"`
	VkGroupID   int64         `json:"vk_group_id"`
	OkGroupID   string        `json:"ok_group_id"`
	MaxChatID   string        `json:"max_chat_id"`
	VkLayout    string        `json:"vk_layout"`
	ScheduledAt string        `json:"scheduled_at"`
	Buttons     []ButtonInput `json:"buttons"`
}

type SourceCreation struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	PublishTg  bool   `json:"publish_tg"`
	PublishVk  bool   `json:"publish_vk"`
	PublishOk  bool   `json:"publish_ok"`
	PublishIg  bool   `json:"publish_ig"`
	PublishMax bool   `json:"publish_max"`
	TgChatID   string `json:"tg_chat_id"`
	VkGroupID  int64  `json:"vk_group_id"`
	OkGroupID  string `json:"ok_group_id"`
	MaxChatID  string `json:"max_chat_id"`
}
