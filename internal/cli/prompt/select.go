// Package prompt provides interactive CLI prompts for user input.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ktr0731/go-fuzzyfinder"
	"golang.org/x/term"
)

// Sentinel errors for prompts.
var (
	ErrNoOptions          = errors.New("no options to select from")
	ErrInvalidSelection   = errors.New("invalid selection")
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrMismatch           = errors.New("entries do not match")
)

// Option is one choice in a selection prompt.
type Option struct {
	Name        string
	Description string
}

// Prompter asks questions on a reader and writer. Finder and ReadPassword
// are nil for plain line input, which is what tests and pipes use.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer

	// Finder picks an option interactively, replacing the numbered menu.
	Finder func(label string, options []Option) (int, error)
	// ReadPassword reads a line without echo.
	ReadPassword func() ([]byte, error)
}

// NewPrompter returns a Prompter on stdin and stderr. When stdin is a
// terminal, selections use the fuzzy finder and passwords are not echoed.
func NewPrompter() *Prompter {
	p := NewPrompterWithIO(os.Stdin, os.Stderr)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.Finder = FuzzySelect
		p.ReadPassword = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

// NewPrompterWithIO creates a Prompter with custom reader and writer for testing.
func NewPrompterWithIO(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && input != "" {
			return strings.TrimSpace(input), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrSelectionCancelled
		}
		return "", errors.Wrap(err, "reading input")
	}
	return strings.TrimSpace(input), nil
}

// Ask prompts for a line of text. An empty answer returns def.
func (p *Prompter) Ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.writer, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.writer, "%s: ", label)
	}
	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return def, nil
	}
	return input, nil
}

// Confirm asks a yes/no question. An empty answer returns def.
func (p *Prompter) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.writer, "%s [%s]: ", label, hint)
	input, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(input) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, errors.Wrapf(ErrInvalidSelection, "%q is not yes or no", input)
	}
}

// Select prompts the user to choose from options and returns the index.
//
// Returns:
//   - ErrNoOptions if the list is empty
//   - 0 if only one option exists (auto-selects without prompting)
//   - The selected index based on user input, def on an empty answer
//   - ErrInvalidSelection if the selection is out of range
//   - ErrSelectionCancelled if input is EOF (e.g., Ctrl+D)
func (p *Prompter) Select(label string, options []Option, def int) (int, error) {
	if len(options) == 0 {
		return 0, ErrNoOptions
	}
	if len(options) == 1 {
		return 0, nil
	}
	if p.Finder != nil {
		return p.Finder(label, options)
	}

	fmt.Fprintf(p.writer, "%s:\n", label)
	for i, o := range options {
		if o.Description != "" {
			fmt.Fprintf(p.writer, "  [%d] %s (%s)\n", i+1, o.Name, o.Description)
		} else {
			fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, o.Name)
		}
	}
	fmt.Fprintf(p.writer, "Select [%d]: ", def+1)

	input, err := p.readLine()
	if err != nil {
		return 0, err
	}
	if input == "" {
		return def, nil
	}

	// Accept the option name as well as its number.
	for i, o := range options {
		if strings.EqualFold(input, o.Name) {
			return i, nil
		}
	}

	selection, err := strconv.Atoi(input)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidSelection, "%q is not a number", input)
	}
	if selection < 1 || selection > len(options) {
		return 0, errors.Wrapf(ErrInvalidSelection, "%d is out of range [1-%d]", selection, len(options))
	}
	return selection - 1, nil
}

// Password prompts for a secret. Without ReadPassword the line is read from
// the reader as typed.
func (p *Prompter) Password(label string) ([]byte, error) {
	fmt.Fprintf(p.writer, "%s: ", label)
	if p.ReadPassword != nil {
		secret, err := p.ReadPassword()
		fmt.Fprintln(p.writer)
		if err != nil {
			return nil, errors.Wrap(err, "reading password")
		}
		return secret, nil
	}
	input, err := p.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, "reading password")
		}
		if input == "" {
			return nil, ErrSelectionCancelled
		}
	}
	return []byte(strings.TrimRight(input, "\r\n")), nil
}

// NewPassword prompts for a secret twice and fails with ErrMismatch when
// the entries differ. An empty secret is allowed.
func (p *Prompter) NewPassword(label string) ([]byte, error) {
	first, err := p.Password(label)
	if err != nil {
		return nil, err
	}
	second, err := p.Password("Confirm " + strings.ToLower(label))
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, ErrMismatch
	}
	return first, nil
}

// FuzzySelect picks an option with the full-screen fuzzy finder.
func FuzzySelect(label string, options []Option) (int, error) {
	idx, err := fuzzyfinder.Find(
		options,
		func(i int) string {
			return options[i].Name
		},
		fuzzyfinder.WithPromptString(label+"> "),
		fuzzyfinder.WithPreviewWindow(func(i, _, _ int) string {
			if i == -1 {
				return ""
			}
			return fmt.Sprintf("%s\n\n%s", options[i].Name, options[i].Description)
		}),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return 0, ErrSelectionCancelled
		}
		return 0, errors.Wrap(err, "interactive selection failed")
	}
	return idx, nil
}
