// Package telegram implements transport.Messenger against the Telegram Bot
// API. Only the JSON call surface the core consumes is covered.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nsafonov/proofdesk/internal/transport"
)

const DefaultEndpoint = "https://api.telegram.org"

type Client struct {
	endpoint string
	token    string
	client   *http.Client
}

func New(endpoint, token string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.endpoint, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s: api error: %s", method, env.Description)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func markup(kb *transport.InlineKeyboard) map[string]any {
	if kb == nil {
		return nil
	}
	return map[string]any{"inline_keyboard": kb.Rows}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *transport.InlineKeyboard) (int, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	if m := markup(kb); m != nil {
		params["reply_markup"] = m
	}
	var msg wireMessage
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, kb *transport.InlineKeyboard) (int, error) {
	params := map[string]any{"chat_id": chatID, "photo": fileRef, "caption": caption}
	if m := markup(kb); m != nil {
		params["reply_markup"] = m
	}
	var msg wireMessage
	if err := c.call(ctx, "sendPhoto", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, fileRef, caption string, kb *transport.InlineKeyboard) (int, error) {
	params := map[string]any{"chat_id": chatID, "document": fileRef, "caption": caption}
	if m := markup(kb); m != nil {
		params["reply_markup"] = m
	}
	var msg wireMessage
	if err := c.call(ctx, "sendDocument", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, kb *transport.InlineKeyboard) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if m := markup(kb); m != nil {
		params["reply_markup"] = m
	}
	return c.call(ctx, "editMessageText", params, nil)
}

func (c *Client) EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *transport.InlineKeyboard) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID}
	if m := markup(kb); m != nil {
		params["reply_markup"] = m
	}
	return c.call(ctx, "editMessageReplyMarkup", params, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.call(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
		params["show_alert"] = alert
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]transport.Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var wire []wireUpdate
	if err := c.call(ctx, "getUpdates", params, &wire); err != nil {
		return nil, err
	}

	updates := make([]transport.Update, 0, len(wire))
	for _, u := range wire {
		updates = append(updates, u.toUpdate())
	}
	return updates, nil
}

// DownloadFile resolves a file ref via getFile and fetches its content.
func (c *Client) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileRef}, &file); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.endpoint, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
