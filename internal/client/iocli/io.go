// Package iocli абстрагирует ввод и вывод команд CLI.
package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// IO ввод-вывод команды
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}

// Stream реализует IO поверх произвольных потоков.
// Пароль читается без эха, только если вход это терминал.
type Stream struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// New создает IO поверх in и out
func New(in io.Reader, out io.Writer) *Stream {
	s := &Stream{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.fd = int(f.Fd())
		s.tty = true
	}
	return s
}

// NewStdio создает IO поверх stdin и stdout
func NewStdio() *Stream {
	return New(os.Stdin, os.Stdout)
}

func (s *Stream) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stream) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

// ReadInput печатает prompt и читает строку без перевода строки
func (s *Stream) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	line, err := s.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword читает пароль без отображения на экране
func (s *Stream) ReadPassword(prompt string) (string, error) {
	if !s.tty {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pw, err := term.ReadPassword(s.fd)
	s.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
