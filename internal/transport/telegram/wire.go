package telegram

import "github.com/nsafonov/proofdesk/internal/transport"

// Wire shapes of the Bot API payloads the core consumes.

type wireUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type wirePhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
}

type wireDocument struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	MIMEType     string `json:"mime_type"`
	FileName     string `json:"file_name"`
}

type wireMessage struct {
	MessageID int `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From     *wireUser       `json:"from"`
	Text     string          `json:"text"`
	Photo    []wirePhotoSize `json:"photo"`
	Document *wireDocument   `json:"document"`
}

type wireCallback struct {
	ID      string       `json:"id"`
	From    wireUser     `json:"from"`
	Data    string       `json:"data"`
	Message *wireMessage `json:"message"`
}

type wireUpdate struct {
	UpdateID      int64         `json:"update_id"`
	Message       *wireMessage  `json:"message"`
	CallbackQuery *wireCallback `json:"callback_query"`
}

func (m *wireMessage) toMessage() *transport.Message {
	if m == nil {
		return nil
	}
	msg := &transport.Message{
		ID:     m.MessageID,
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}
	if m.From != nil {
		msg.From = transport.User{ID: m.From.ID, Username: m.From.Username}
	}
	for _, p := range m.Photo {
		msg.Photos = append(msg.Photos, transport.PhotoSize{FileRef: p.FileID, UniqueID: p.FileUniqueID})
	}
	if m.Document != nil {
		msg.Document = &transport.Document{
			FileRef:  m.Document.FileID,
			UniqueID: m.Document.FileUniqueID,
			MIMEType: m.Document.MIMEType,
			FileName: m.Document.FileName,
		}
	}
	return msg
}

func (u wireUpdate) toUpdate() transport.Update {
	out := transport.Update{ID: u.UpdateID, Message: u.Message.toMessage()}
	if u.CallbackQuery != nil {
		out.Callback = &transport.Callback{
			ID:      u.CallbackQuery.ID,
			From:    transport.User{ID: u.CallbackQuery.From.ID, Username: u.CallbackQuery.From.Username},
			Data:    u.CallbackQuery.Data,
			Message: u.CallbackQuery.Message.toMessage(),
		}
	}
	return out
}
