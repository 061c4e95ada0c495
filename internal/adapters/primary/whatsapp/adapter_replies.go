package whatsapp

import (
	"strings"

	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types/events"
)

// isReplyToBot checks if a message quotes a message the bot sent
func (a *WhatsAppAdapter) isReplyToBot(evt *events.Message) bool {
	if a.client == nil || a.client.Store.ID == nil {
		return false
	}

	contextInfo := getMessageContextInfo(evt)
	if contextInfo == nil || contextInfo.Participant == nil {
		return false
	}

	// compare the user part only, the quoted JID may carry a device suffix
	return strings.Contains(contextInfo.GetParticipant(), a.client.Store.ID.User)
}

// getMessageContextInfo returns the reply context of a text or image message
func getMessageContextInfo(evt *events.Message) *waProto.ContextInfo {
	if evt.Message == nil {
		return nil
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetContextInfo()
	}
	if img := evt.Message.GetImageMessage(); img != nil {
		return img.GetContextInfo()
	}
	return nil
}
