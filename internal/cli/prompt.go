package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompter reads answers from the command's input. On a terminal passwords
// are read without echo; otherwise one line is read per answer, which lets
// scripts pipe passwords in.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, out: cmd.ErrOrStderr(), reader: bufio.NewReader(in)}
}

func (p *prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	return int(f.Fd()), true
}

// Password prints prompt and reads a password.
func (p *prompter) Password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if fd, ok := p.terminalFd(); ok {
		pw, err := readPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", plainError{fmt.Errorf("no password given")}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NewPassword asks for a password twice and checks both entries match.
func (p *prompter) NewPassword(prompt string) (string, error) {
	pw, err := p.Password(prompt)
	if err != nil {
		return "", err
	}
	confirm, err := p.Password("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", plainError{fmt.Errorf("passwords do not match")}
	}
	return pw, nil
}
