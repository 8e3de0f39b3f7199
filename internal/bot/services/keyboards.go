package services

import "github.com/nsafonov/proofdesk/internal/transport"

// Callback data prefix for reviewer actions: "pay:<action>:<token>".
const ReviewCallbackPrefix = "pay:"

// ReviewActionsKeyboard is the keyboard under a new-proof notification.
func ReviewActionsKeyboard(token string) *transport.InlineKeyboard {
	return &transport.InlineKeyboard{Rows: [][]transport.Button{
		{{Text: "✅ I received payment", Callback: "pay:confirm:" + token}},
		{{Text: "❌ Reject", Callback: "pay:reject:" + token}},
	}}
}

// ReviewConfirmKeyboard is the yes/no confirmation dialog. "No" returns to
// the actions keyboard.
func ReviewConfirmKeyboard(token string) *transport.InlineKeyboard {
	return &transport.InlineKeyboard{Rows: [][]transport.Button{
		{
			{Text: "Yes", Callback: "pay:yes:" + token},
			{Text: "No", Callback: "pay:no:" + token},
		},
	}}
}
