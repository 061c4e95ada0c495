package domain

import (
	"slices"
	"strings"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// PartType tags a ContentPart
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image"
)

// ContentPart is one typed element of structured content. Exactly one of Text
// or Image is meaningful, selected by Type.
type ContentPart struct {
	Type  PartType
	Text  string
	Image ImageRef
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image content part
func ImagePart(ref ImageRef) ContentPart {
	return ContentPart{Type: PartTypeImage, Image: ref}
}

// Content is either a plain string or an ordered sequence of parts. The zero
// value is the empty plain string.
type Content struct {
	text  string
	parts []ContentPart
}

// PlainContent builds plain-string content
func PlainContent(text string) Content {
	return Content{text: text}
}

// StructuredContent builds content from an ordered list of parts. The slice is
// copied so later changes by the caller are not observed.
func StructuredContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{parts: slices.Clone(parts)}
}

// IsStructured reports whether the content has the part-sequence shape
func (c Content) IsStructured() bool {
	return c.parts != nil
}

// Text returns the plain string. For structured content it joins the text
// parts, which is only meant for logging and previews.
func (c Content) Text() string {
	if !c.IsStructured() {
		return c.text
	}

	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Type == PartTypeText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Parts returns a copy of the parts of structured content, nil otherwise
func (c Content) Parts() []ContentPart {
	if !c.IsStructured() {
		return nil
	}
	return slices.Clone(c.parts)
}

// Images returns the image references of structured content in order
func (c Content) Images() []ImageRef {
	var refs []ImageRef
	for _, p := range c.parts {
		if p.Type == PartTypeImage {
			refs = append(refs, p.Image)
		}
	}
	return refs
}

// Equal reports whether two contents have the same shape and values
func (c Content) Equal(other Content) bool {
	if c.IsStructured() != other.IsStructured() {
		return false
	}
	if !c.IsStructured() {
		return c.text == other.text
	}
	return slices.Equal(c.parts, other.parts)
}

// Message is the atomic unit of a conversation
type Message struct {
	Role    Role
	Content Content
}

// Equal reports whether two messages have the same role and content
func (m Message) Equal(other Message) bool {
	return m.Role == other.Role && m.Content.Equal(other.Content)
}

// TextMessage builds a message with plain-string content
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: PlainContent(text)}
}

// MultiModalUserMessage builds a user message with structured content. When
// both are given the text part precedes the image part.
func MultiModalUserMessage(text string, image *ImageRef) (Message, error) {
	var parts []ContentPart
	if strings.TrimSpace(text) != "" {
		parts = append(parts, TextPart(text))
	}
	if image != nil {
		parts = append(parts, ImagePart(*image))
	}
	if len(parts) == 0 {
		return Message{}, ErrEmptyTurn
	}

	return Message{Role: RoleUser, Content: StructuredContent(parts...)}, nil
}
