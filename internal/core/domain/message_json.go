package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wirePart is the nested JSON form of a ContentPart. Besides our own
// {"type":"image"} form it accepts the OpenAI-style image_url part that older
// clients resend as chat history.
type wirePart struct {
	Type       string        `json:"type"`
	Text       string        `json:"text,omitempty"`
	MIMEType   string        `json:"mimeType,omitempty"`
	Base64Data string        `json:"base64Data,omitempty"`
	ImageURL   *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON keeps the content shape: a JSON string for plain content and a
// nested array for structured content.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.IsStructured() {
		return json.Marshal(c.text)
	}

	parts := make([]wirePart, 0, len(c.parts))
	for _, p := range c.parts {
		switch p.Type {
		case PartTypeText:
			parts = append(parts, wirePart{Type: string(PartTypeText), Text: p.Text})
		case PartTypeImage:
			parts = append(parts, wirePart{
				Type:       string(PartTypeImage),
				MIMEType:   p.Image.MIMEType,
				Base64Data: p.Image.Base64Data,
			})
		default:
			return nil, fmt.Errorf("unknown content part type %q", p.Type)
		}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts either a JSON string or an array of parts
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("content is missing")
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = PlainContent(text)
		return nil
	}

	var raw []wirePart
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}

	if len(raw) == 0 {
		return fmt.Errorf("structured content has no parts")
	}

	parts := make([]ContentPart, 0, len(raw))
	for i, wp := range raw {
		part, err := wp.toPart()
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	*c = StructuredContent(parts...)
	return nil
}

func (wp wirePart) toPart() (ContentPart, error) {
	switch wp.Type {
	case string(PartTypeText):
		return TextPart(wp.Text), nil
	case string(PartTypeImage):
		mimeType, err := NormalizeImageType(wp.MIMEType)
		if err != nil {
			return ContentPart{}, err
		}
		ref := ImageRef{MIMEType: mimeType, Base64Data: wp.Base64Data}
		if _, err := ref.Bytes(); err != nil {
			return ContentPart{}, fmt.Errorf("invalid base64 image data: %w", err)
		}
		return ImagePart(ref), nil
	case "image_url":
		if wp.ImageURL == nil {
			return ContentPart{}, fmt.Errorf("image_url part without url")
		}
		ref, err := ParseDataURL(wp.ImageURL.URL)
		if err != nil {
			return ContentPart{}, err
		}
		return ImagePart(ref), nil
	default:
		return ContentPart{}, fmt.Errorf("unknown part type %q", wp.Type)
	}
}

// MarshalJSON encodes a message as {"role":..., "content":...}
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := m.Content.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

// UnmarshalJSON decodes a message and validates its role
func (m *Message) UnmarshalJSON(data []byte) error {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return err
	}
	if !wm.Role.Valid() {
		return fmt.Errorf("unknown role %q", wm.Role)
	}

	var content Content
	if err := content.UnmarshalJSON(wm.Content); err != nil {
		return err
	}

	m.Role = wm.Role
	m.Content = content
	return nil
}

// ParseHistory decodes an externally supplied chat history. An empty payload
// or JSON null is an empty history; anything that is not a list of messages
// fails with ErrInvalidHistoryFormat.
func ParseHistory(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Message{}, nil
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHistoryFormat, err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}
