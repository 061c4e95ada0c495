package chatcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// maxLineBytes bounds one piped input line
const maxLineBytes = 1 << 20

// lineReader yields one input line per prompt. io.EOF ends the chat.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// newLineReader uses line editing with history on a terminal and plain line
// scanning for pipes and tests
func newLineReader(in io.Reader, out io.Writer, historyFile string) lineReader {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return newLinerInput(historyFile)
	}
	return newScannerInput(in, out)
}

// linerInput reads from an interactive terminal
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput(historyFile string) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	li := &linerInput{line: line, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return li
}

func (li *linerInput) ReadLine(prompt string) (string, error) {
	input, err := li.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		li.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history and restores the terminal
func (li *linerInput) Close() error {
	if li.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(li.historyFile), 0700); err == nil {
			if f, err := os.OpenFile(li.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				li.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	return li.line.Close()
}

// scannerInput reads newline separated input that is not a terminal
type scannerInput struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScannerInput(in io.Reader, out io.Writer) *scannerInput {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &scannerInput{scanner: scanner, out: out}
}

func (si *scannerInput) ReadLine(prompt string) (string, error) {
	fmt.Fprint(si.out, prompt)
	if !si.scanner.Scan() {
		fmt.Fprintln(si.out)
		if err := si.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return si.scanner.Text(), nil
}

func (si *scannerInput) Close() error { return nil }

// defaultHistoryFile keeps prompt history next to other user config
func defaultHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dermachat", "history")
}
