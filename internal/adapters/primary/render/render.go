// Package render turns transcript messages into display blocks and prints
// them to a terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/vibin/derma-chat/internal/core/domain"
)

// BlockKind tags a display block
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockImage BlockKind = "image"
)

// Block is one displayable element of a message
type Block struct {
	Role     domain.Role
	Kind     BlockKind
	Text     string
	Image    []byte
	MIMEType string
}

// RenderMessage returns one text block for plain content and one block per
// part, in order, for structured content. Image parts are decoded back to
// their original bytes.
func RenderMessage(msg domain.Message) ([]Block, error) {
	if !msg.Content.IsStructured() {
		return []Block{{Role: msg.Role, Kind: BlockText, Text: msg.Content.Text()}}, nil
	}

	parts := msg.Content.Parts()
	blocks := make([]Block, 0, len(parts))
	for i, part := range parts {
		switch part.Type {
		case domain.PartTypeText:
			blocks = append(blocks, Block{Role: msg.Role, Kind: BlockText, Text: part.Text})
		case domain.PartTypeImage:
			data, err := part.Image.Bytes()
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i, err)
			}
			blocks = append(blocks, Block{Role: msg.Role, Kind: BlockImage, Image: data, MIMEType: part.Image.MIMEType})
		default:
			return nil, fmt.Errorf("part %d: unknown type %q", i, part.Type)
		}
	}
	return blocks, nil
}

// RenderTranscript renders every message in order
func RenderTranscript(history []domain.Message) ([]Block, error) {
	var blocks []Block
	for i, msg := range history {
		b, err := RenderMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		blocks = append(blocks, b...)
	}
	return blocks, nil
}

// Speaker is the label shown for a role
func Speaker(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return "You"
	case domain.RoleAssistant:
		return "Derma"
	default:
		return "System"
	}
}

// Markdown lays blocks out as markdown, starting a new speaker heading
// whenever the role changes. imageLabel describes image blocks; nil uses a
// size placeholder.
func Markdown(blocks []Block, imageLabel func(Block) string) string {
	if imageLabel == nil {
		imageLabel = placeholder
	}

	var b strings.Builder
	var current domain.Role
	for i, block := range blocks {
		if i == 0 || block.Role != current {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "**%s:**\n\n", Speaker(block.Role))
			current = block.Role
		}

		switch block.Kind {
		case BlockImage:
			b.WriteString(imageLabel(block))
		default:
			b.WriteString(block.Text)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func placeholder(block Block) string {
	return fmt.Sprintf("_[%s image, %d bytes]_", block.MIMEType, len(block.Image))
}
