// Package diag displays compiler diagnostics and shader messages.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/batched"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/shadeops"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = SuccessColorFG
	InfoStyleBG    = SuccessStyleBG
)

// bannerWidth caps the dashes of a compile error banner.
const bannerWidth = 50

// Printer writes tagged messages to W, styled unless Plain is set.
type Printer struct {
	W     io.Writer
	Plain bool
}

func New(w io.Writer, color bool) *Printer {
	return &Printer{W: w, Plain: !color}
}

func (p *Printer) badge(style *pterm.Style, tag string) string {
	if p.Plain {
		return "[" + tag + "]"
	}
	return style.Sprint(tag)
}

func (p *Printer) text(c pterm.Color, s string) string {
	if p.Plain {
		return s
	}
	return c.Sprint(s)
}

func (p *Printer) line(style *pterm.Style, c pterm.Color, tag, msg string) {
	fmt.Fprintln(p.W, p.badge(style, tag)+" "+p.text(c, msg))
}

// Error prints err under tag.
func (p *Printer) Error(tag string, err error) {
	p.line(ErrorStyleBG, ErrorColorFG, tag, err.Error())
}

// Warning prints a warning message under tag.
func (p *Printer) Warning(tag, msg string) {
	p.line(WarnStyleBG, WarnColorFG, tag, msg)
}

// Info prints an informational message under tag.
func (p *Printer) Info(tag, msg string) {
	p.line(InfoStyleBG, InfoColorFG, tag, msg)
}

// CompileError prints a code generation failure. Located errors get a
// banner naming the source position.
func (p *Printer) CompileError(err error) {
	var located *batched.Error
	if !errors.As(err, &located) {
		p.Error("Compile Error", err)
		return
	}
	kind := "Compile Error"
	switch {
	case errors.Is(err, batched.ErrNotImplemented):
		kind = "Unsupported"
	case errors.Is(err, batched.ErrFormat):
		kind = "Format Error"
	}
	pos := located.File
	if pos == "" {
		pos = "<unknown>"
	}
	if located.Line > 0 {
		pos = fmt.Sprintf("%s:%d", pos, located.Line)
	}
	dashes := bannerWidth - len(kind) - len(pos) - 2
	if dashes < 3 {
		dashes = 3
	}
	fmt.Fprintln(p.W, "-- "+p.badge(ErrorStyleBG, kind)+" "+strings.Repeat("-", dashes)+" "+p.text(InfoColorFG, pos))
	where := fmt.Sprintf("layer %s (shader %s)", located.Layer, located.Shader)
	if located.Op != "" {
		where += ", op " + located.Op
	}
	fmt.Fprintln(p.W, where)
	fmt.Fprintln(p.W, located.Err)
}

// Messages prints the errors and warnings of a shader run.
func (p *Printer) Messages(msgs []shadeops.Message) {
	for _, m := range msgs {
		if m.Severity == shadeops.SevWarning {
			p.Warning("Shader Warning", m.Text)
		} else {
			p.line(ErrorStyleBG, ErrorColorFG, "Shader Error", m.Text)
		}
	}
}

// Forward returns a reporter hook that prints each message as it
// arrives.
func (p *Printer) Forward() func(shadeops.Message) {
	return func(m shadeops.Message) { p.Messages([]shadeops.Message{m}) }
}

// Table prints rows under header as a boxed table.
func (p *Printer) Table(title string, header []string, rows [][]any) {
	tw := table.NewWriter()
	if !p.Plain {
		tw.SetStyle(table.StyleLight)
	}
	if title != "" {
		tw.SetTitle(title)
	}
	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	tw.AppendHeader(hr)
	for _, r := range rows {
		tw.AppendRow(table.Row(r))
	}
	fmt.Fprintln(p.W, tw.Render())
}
