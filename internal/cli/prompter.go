package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt errors.
var (
	ErrEmptyPassphrase    = errors.New("passphrase must not be empty")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
)

// Prompter asks the user for input. Passphrases are read without echo when
// the input is a terminal.
type Prompter struct {
	reader       *NonBlockingReader
	writer       io.Writer
	readPassword func() ([]byte, error)
}

// NewPrompter creates a prompter reading from in and writing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		reader: NewNonBlockingReader(in),
		writer: out,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.readPassword = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

// Passphrase asks for a passphrase once.
func (p *Prompter) Passphrase(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", err
	}

	var value string
	if p.readPassword != nil {
		raw, err := p.readPassword()
		_, _ = fmt.Fprintln(p.writer)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		value = string(raw)
	} else {
		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		value = line
	}

	if value == "" {
		return "", ErrEmptyPassphrase
	}
	return value, nil
}

// NewPassphrase asks for a passphrase twice and requires both to match.
func (p *Prompter) NewPassphrase(ctx context.Context) (string, error) {
	first, err := p.Passphrase(ctx, "New passphrase")
	if err != nil {
		return "", err
	}
	second, err := p.Passphrase(ctx, "Repeat passphrase")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", ErrPassphraseMismatch
	}
	return first, nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(question+" [y/N]")); err != nil {
		return false, err
	}
	answer, err := p.reader.ReadLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
