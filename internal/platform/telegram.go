package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramAdapter sends through the bot API. Bots are constructed per
// call in offline mode because tokens differ per project.
type TelegramAdapter struct {
	apiURL string
}

func NewTelegramAdapter(apiURL string) *TelegramAdapter {
	return &TelegramAdapter{apiURL: apiURL}
}

func (a *TelegramAdapter) bot(token string) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		Token:   token,
		URL:     a.apiURL,
		Offline: true,
	})
}

// chatRef addresses a chat the bot API way: a numeric id or a public
// @username, passed to chat_id verbatim.
type chatRef string

func (r chatRef) Recipient() string { return string(r) }

func parseChat(dest string) (chatRef, error) {
	if strings.HasPrefix(dest, "@") && len(dest) > 1 {
		return chatRef(dest), nil
	}
	if _, err := strconv.ParseInt(dest, 10, 64); err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", dest, err)
	}
	return chatRef(dest), nil
}

func (a *TelegramAdapter) Send(ctx context.Context, creds Credentials, dest string, content Content) (string, error) {
	if creds.Token == "" {
		return "", errors.New("telegram token not configured")
	}

	rec, err := parseChat(dest)
	if err != nil {
		return "", err
	}

	b, err := a.bot(creds.Token)
	if err != nil {
		return "", fmt.Errorf("telegram bot init: %w", err)
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if markup := buildMarkup(content.Buttons); markup != nil {
		opts.ReplyMarkup = markup
	}

	switch len(content.MediaPaths) {
	case 0:
		msg, err := b.Send(rec, TruncateCaption(content.Text, CaptionLimitTextOnly), opts)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(msg.ID), nil

	case 1:
		caption := TruncateCaption(content.Text, CaptionLimitWithMedia)
		msg, err := b.Send(rec, mediaFor(content.MediaPaths[0], caption), opts)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(msg.ID), nil

	default:
		// Albums cannot carry a keyboard; the caption rides on the
		// first item only.
		album := make(tele.Album, 0, len(content.MediaPaths))
		for i, path := range content.MediaPaths {
			caption := ""
			if i == 0 {
				caption = TruncateCaption(content.Text, CaptionLimitWithMedia)
			}
			album = append(album, mediaFor(path, caption))
		}
		msgs, err := b.SendAlbum(rec, album, &tele.SendOptions{ParseMode: tele.ModeHTML})
		if err != nil {
			return "", err
		}
		if len(msgs) == 0 {
			return "", errors.New("telegram returned empty album response")
		}
		return strconv.Itoa(msgs[0].ID), nil
	}
}

func (a *TelegramAdapter) Delete(ctx context.Context, creds Credentials, dest, remoteID string) error {
	if creds.Token == "" {
		return errors.New("telegram token not configured")
	}

	rec, err := parseChat(dest)
	if err != nil {
		return err
	}

	b, err := a.bot(creds.Token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	// StoredMessage only carries numeric chat ids, so the raw call
	// keeps @username chats deletable too
	_, err = b.Raw("deleteMessage", map[string]string{
		"chat_id":    rec.Recipient(),
		"message_id": remoteID,
	})
	return err
}

// AnswerCallback acknowledges a callback query, showing text to the
// user who pressed the button.
func (a *TelegramAdapter) AnswerCallback(ctx context.Context, token, callbackID, text string) error {
	b, err := a.bot(token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	return b.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func mediaFor(path, caption string) tele.Inputtable {
	if IsPhoto(path) {
		return &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	}
	return &tele.Video{File: tele.FromDisk(path), Caption: caption}
}

func buildMarkup(buttons []Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, []tele.InlineButton{{
			Text: btn.Text,
			URL:  btn.URL,
			Data: btn.Data,
		}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
