package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vibin/derma-chat/internal/adapters/primary/render"
	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/services"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// repl drives one interactive chat over an in-process service
type repl struct {
	service   *services.AnalysisService
	terminal  *render.Terminal
	out       io.Writer
	sessionID string
	pending   *domain.ImageRef
	pendingAt string
}

func newREPL(service *services.AnalysisService, terminal *render.Terminal, out io.Writer) *repl {
	return &repl{
		service:   service,
		terminal:  terminal,
		out:       out,
		sessionID: service.CreateSession(),
	}
}

// loop reads lines until /quit, end of input or cancellation. Failed turns are
// reported and the session carries on.
func (r *repl) loop(ctx context.Context, input lineReader) error {
	r.status("Session %s. Type /help for commands.", r.sessionID)
	for {
		line, err := input.ReadLine(promptStyle.Render(r.sessionID + "> "))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		quit, err := r.handle(ctx, strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("error: "+err.Error()))
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.submit(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.status("/image <path>, /send, /new, /sessions, /switch <id>, /history, /quit")
	case "/image":
		return false, r.attach(arg)
	case "/send":
		if r.pending == nil {
			return false, fmt.Errorf("no image attached, use /image <path> first")
		}
		return false, r.submit(ctx, "")
	case "/new":
		r.sessionID = r.service.CreateSession()
		r.clearPending()
		r.status("Started session %s", r.sessionID)
	case "/sessions":
		for _, id := range r.service.ListSessions() {
			marker := "  "
			if id == r.sessionID {
				marker = "* "
			}
			fmt.Fprintln(r.out, marker+id)
		}
	case "/switch":
		if _, err := r.service.GetHistory(arg); err != nil {
			return false, err
		}
		r.sessionID = arg
		r.clearPending()
		r.status("Switched to session %s", r.sessionID)
	case "/history":
		history, err := r.service.GetHistory(r.sessionID)
		if err != nil {
			return false, err
		}
		if len(history) == 0 {
			r.status("Nothing here yet")
			return false, nil
		}
		return false, r.terminal.Print(history...)
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// attach reads a photo from disk for the next turn
func (r *repl) attach(path string) error {
	if path == "" {
		return fmt.Errorf("usage: /image <path>")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read image: %w", err)
	}

	mimeType, err := domain.DetectImageType(data)
	if err != nil {
		return err
	}

	img := domain.EncodeImage(data, mimeType)
	r.pending = &img
	r.pendingAt = filepath.Base(path)
	r.status("Attached %s (%s). Ask a question or /send.", r.pendingAt, mimeType)
	return nil
}

func (r *repl) submit(ctx context.Context, query string) error {
	// the stored transcript keeps only the diagnosis, so the photo is shown
	// as it goes out
	if r.pending != nil {
		turn, err := domain.MultiModalUserMessage(query, r.pending)
		if err != nil {
			return err
		}
		if err := r.terminal.Print(turn); err != nil {
			return err
		}
	}

	result, err := r.service.SubmitTurn(ctx, services.TurnRequest{
		SessionID: r.sessionID,
		Image:     r.pending,
		Query:     query,
	})
	if err != nil {
		return err
	}
	r.clearPending()

	var replies []domain.Message
	if result.Diagnosis != nil {
		replies = append(replies, domain.TextMessage(domain.RoleAssistant, *result.Diagnosis))
	}
	if result.Reply != nil {
		replies = append(replies, domain.TextMessage(domain.RoleAssistant, *result.Reply))
	}
	return r.terminal.Print(replies...)
}

func (r *repl) clearPending() {
	r.pending = nil
	r.pendingAt = ""
}

func (r *repl) status(format string, args ...any) {
	fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf(format, args...)))
}
