package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/services"
)

// processTurn submits one WhatsApp message as a turn on the chat's session
// and replies with whatever the turn produced
func (a *WhatsAppAdapter) processTurn(evt *events.Message, query string, hasImage bool) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	sessionID := a.service.OpenSession(sessionPrefix + evt.Info.Chat.String())
	req := services.TurnRequest{SessionID: sessionID, Query: query}

	if hasImage {
		image, err := a.downloadImage(evt)
		if err != nil {
			a.log.Error("Failed to read WhatsApp image", "message_id", evt.Info.ID, "error", err)
			a.sendReply(userMessage(err), evt)
			return
		}
		req.Image = image
		a.sendReply("Looking at your photo, this can take a moment...", evt)
	}

	result, err := a.service.SubmitTurn(ctx, req)
	if err != nil {
		a.log.Error("WhatsApp turn failed", "session_id", sessionID, "error", err)
		a.sendReply(userMessage(err), evt)
		return
	}

	for _, text := range turnReplies(result) {
		a.sendReply(text, evt)
	}
}

// downloadImage fetches the image of evt and encodes it for the model
func (a *WhatsAppAdapter) downloadImage(evt *events.Message) (*domain.ImageRef, error) {
	imgMsg := evt.Message.GetImageMessage()
	if imgMsg == nil {
		return nil, errors.New("no image in message")
	}

	data, err := a.client.Download(imgMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	mimeType, err := domain.NormalizeImageType(imgMsg.GetMimetype())
	if err != nil {
		if mimeType, err = domain.DetectImageType(data); err != nil {
			return nil, err
		}
	}

	a.log.Debug("Downloaded WhatsApp image", "size_bytes", len(data), "mime", mimeType)
	image := domain.EncodeImage(data, mimeType)
	return &image, nil
}

// turnReplies lists the messages to send back, diagnosis first
func turnReplies(result *services.TurnResult) []string {
	var replies []string
	if result.Diagnosis != nil {
		replies = append(replies, *result.Diagnosis)
	}
	if result.Reply != nil {
		replies = append(replies, *result.Reply)
	}
	return replies
}

// userMessage turns a failed turn into a short reply for the chat
func userMessage(err error) string {
	switch domain.ErrorKind(err) {
	case domain.KindUnsupportedImage:
		return "Sorry, I can only read JPEG or PNG photos."
	case domain.KindAnalysisFailed:
		return "Sorry, I couldn't analyze that photo right now. Please try again in a bit."
	case domain.KindReplyFailed:
		return "Sorry, I couldn't answer that right now. Please try again in a bit."
	default:
		return "Sorry, something went wrong while processing your message."
	}
}
