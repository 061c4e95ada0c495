package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"

	"github.com/vibin/derma-chat/internal/core/domain"
)

// Terminal prints messages as glamour-rendered markdown
type Terminal struct {
	out      io.Writer
	renderer *glamour.TermRenderer

	// ImageDir, when set, receives decoded images so they can be opened
	// from the terminal
	ImageDir string
	saved    int
}

// NewTerminal creates a terminal renderer. style is a glamour standard style
// name; empty picks one from the terminal background.
func NewTerminal(out io.Writer, style string, width int) (*Terminal, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}

	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	return &Terminal{out: out, renderer: renderer}, nil
}

// Print renders messages and writes them out
func (t *Terminal) Print(messages ...domain.Message) error {
	blocks, err := RenderTranscript(messages)
	if err != nil {
		return err
	}

	rendered, err := t.renderer.Render(Markdown(blocks, t.imageLabel))
	if err != nil {
		return err
	}

	_, err = io.WriteString(t.out, rendered)
	return err
}

// imageLabel saves the image when ImageDir is set and points at the file
func (t *Terminal) imageLabel(block Block) string {
	if t.ImageDir == "" {
		return placeholder(block)
	}

	t.saved++
	path := filepath.Join(t.ImageDir, fmt.Sprintf("image-%d%s", t.saved, extension(block.MIMEType)))
	if err := os.WriteFile(path, block.Image, 0644); err != nil {
		return placeholder(block)
	}
	return fmt.Sprintf("_[image saved to %s]_", path)
}

func extension(mimeType string) string {
	switch mimeType {
	case domain.MIMETypePNG:
		return ".png"
	case domain.MIMETypeJPEG:
		return ".jpg"
	default:
		return ".img"
	}
}
