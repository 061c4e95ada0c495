package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/adapters/primary/render"
	"github.com/vibin/derma-chat/internal/adapters/secondary/llm"
	"github.com/vibin/derma-chat/internal/adapters/secondary/repository"
	"github.com/vibin/derma-chat/internal/core/services"
	"github.com/vibin/derma-chat/internal/logger"
)

const chatLongDesc string = `Chat with the skin analysis assistant in the terminal.

Attach a photo with /image, then ask questions about it. Every line that
is not a command is sent as a question in the current session.

Commands:
  /image <path>   attach a JPEG or PNG photo to the next turn
  /send           send the attached photo without a question
  /new            start a new session
  /sessions       list sessions
  /switch <id>    continue another session
  /history        show the current session
  /quit           leave

Examples:
  dermachat --config config/config.toml
  dermachat --provider mock --images /tmp/derma`

const chatShortDesc string = "Chat with the skin analysis assistant"

type chatCommander struct {
	configPath  string
	provider    string
	imageDir    string
	style       string
	historyFile string
	debug       bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "dermachat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (JSON or TOML)")
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Override the model provider (openai, ollama, mock)")
	cmd.Flags().StringVar(&cmder.imageDir, "images", "", "Directory to save images from the transcript into")
	cmd.Flags().StringVar(&cmder.style, "style", "", "Markdown style (dark, light, notty); detected when empty")
	cmd.Flags().StringVar(&cmder.historyFile, "history", defaultHistoryFile(), "File the prompt history is kept in on a terminal")
	cmd.Flags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if c.debug {
		level = slog.LevelDebug
	}
	log := logger.New(level, cmd.ErrOrStderr())

	model, err := llm.NewModelCapability(&cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("could not create model: %w", err)
	}

	service := services.NewAnalysisService(model, repository.NewInMemoryRegistry(log), cfg, log)

	out := cmd.OutOrStdout()
	terminal, err := render.NewTerminal(out, c.markdownStyle(out), 80)
	if err != nil {
		return err
	}
	if c.imageDir != "" {
		if err := os.MkdirAll(c.imageDir, 0755); err != nil {
			return fmt.Errorf("could not create image directory %s: %w", c.imageDir, err)
		}
		terminal.ImageDir = c.imageDir
	}

	input := newLineReader(cmd.InOrStdin(), out, c.historyFile)
	defer input.Close()

	return newREPL(service, terminal, out).loop(ctx, input)
}

func (c *chatCommander) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if c.configPath != "" {
		loaded, err := config.LoadConfig(c.configPath)
		if err != nil {
			return nil, fmt.Errorf("could not load config %s: %w", c.configPath, err)
		}
		cfg = loaded
	}
	if c.provider != "" {
		cfg.LLM.Provider = c.provider
	}
	return cfg, nil
}

// markdownStyle keeps escape codes out of pipes and files
func (c *chatCommander) markdownStyle(out io.Writer) string {
	if c.style != "" {
		return c.style
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ""
	}
	return "notty"
}
