package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

// printer writes results for a person reading a terminal.
type printer struct {
	out io.Writer
	err io.Writer

	okColor   *color.Color
	warnColor *color.Color
	failColor *color.Color
	dimColor  *color.Color
}

func newPrinter(out, errOut io.Writer) *printer {
	return &printer{
		out:       out,
		err:       errOut,
		okColor:   color.New(color.FgGreen),
		warnColor: color.New(color.FgYellow),
		failColor: color.New(color.FgRed, color.Bold),
		dimColor:  color.New(color.Faint),
	}
}

// answer prints an answer, rendering markdown unless raw is set.
func (p *printer) answer(text string, raw bool) {
	if !raw {
		if renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
			if rendered, err := renderer.Render(text); err == nil {
				fmt.Fprint(p.out, rendered)
				return
			}
		}
	}
	fmt.Fprintln(p.out, text)
}

func (p *printer) debug(lines []string) {
	for _, line := range lines {
		p.dimColor.Fprintf(p.err, "  · %s\n", line)
	}
}

func (p *printer) ok(format string, args ...any) {
	p.okColor.Fprintf(p.out, "✔ "+format+"\n", args...)
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) warn(format string, args ...any) {
	p.warnColor.Fprintf(p.err, "! "+format+"\n", args...)
}

func (p *printer) fail(format string, args ...any) {
	p.failColor.Fprintf(p.err, "✘ "+format+"\n", args...)
}

// failErr prints err with a hint matching its kind.
func (p *printer) failErr(err error) {
	switch {
	case errors.Is(err, backend.ErrInvalidRequest):
		p.fail("%s", strings.TrimPrefix(err.Error(), backend.ErrInvalidRequest.Error()+": "))
	case transport.IsAuth(err):
		p.fail("%s", transport.Message(err))
		p.warn("session cleared, run `jarvik login` again")
	default:
		p.fail("%s", transport.Message(err))
	}

	var te *transport.Error
	if errors.As(err, &te) {
		p.debug(te.Debug)
	}
}
