package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Swapped in tests so they never touch the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// prompt prints label to w and reads one trimmed line. A final line without
// a newline is accepted.
func prompt(r *bufio.Reader, w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a secret without echo. When stdin is not a terminal the
// secret is read as a plain line so the tool can be scripted.
func promptSecret(r *bufio.Reader, w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return prompt(r, w, "Secret")
	}

	if _, err := fmt.Fprint(w, "Secret: "); err != nil {
		return "", err
	}
	secret, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(secret), nil
}
