// Package transport abstracts the chat-platform API the bot runs on. The
// core never depends on platform payload shapes beyond the types defined
// here; internal/transport/telegram provides the real implementation.
package transport

import "context"

// Messenger is the outbound operation surface consumed by the core.
type Messenger interface {
	// SendMessage sends a text message and returns the new message id.
	SendMessage(ctx context.Context, chatID int64, text string, kb *InlineKeyboard) (int, error)

	// SendPhoto re-sends a photo by its opaque file ref with a caption.
	SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, kb *InlineKeyboard) (int, error)

	// SendDocument re-sends a document by its opaque file ref with a caption.
	SendDocument(ctx context.Context, chatID int64, fileRef, caption string, kb *InlineKeyboard) (int, error)

	// EditMessageText replaces the text (and keyboard) of an existing message.
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, kb *InlineKeyboard) error

	// EditReplyMarkup replaces only the inline keyboard of a message.
	EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *InlineKeyboard) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// AnswerCallback dismisses a pending callback's loading indicator,
	// optionally showing text (as an alert when alert is true).
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Updater is the inbound side used by the run loop.
type Updater interface {
	// GetUpdates long-polls for updates newer than offset.
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error)
}

// FileDownloader fetches an artifact's bytes by its opaque file ref.
// Optional capability, used by the archiver.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileRef string) ([]byte, error)
}

type User struct {
	ID       int64
	Username string
}

// PhotoSize is one rendition of a photo; the transport lists them smallest
// first, so the last one is the original.
type PhotoSize struct {
	FileRef  string
	UniqueID string
}

type Document struct {
	FileRef  string
	UniqueID string
	MIMEType string
	FileName string
}

type Message struct {
	ID       int
	ChatID   int64
	From     User
	Text     string
	Photos   []PhotoSize
	Document *Document
}

// Callback is a pending interactive-callback (inline button press).
type Callback struct {
	ID      string
	From    User
	Data    string
	Message *Message
}

// Update is one inbound event: exactly one of Message or Callback is set.
type Update struct {
	ID       int64
	Message  *Message
	Callback *Callback
}

type Button struct {
	Text     string `json:"text"`
	Callback string `json:"callback_data"`
}

type InlineKeyboard struct {
	Rows [][]Button
}

// SingleButton builds a one-button keyboard, the most common affordance.
func SingleButton(text, callback string) *InlineKeyboard {
	return &InlineKeyboard{Rows: [][]Button{{{Text: text, Callback: callback}}}}
}
