package dispatch

import (
	"fmt"
	"html"

	"github.com/nhle/review-notifier/internal/sink"
)

// formatter marks up raw text for one sink format. Every argument is raw
// text; formatters do their own escaping.
type formatter interface {
	text(s string) string
	bold(s string) string
	italic(s string) string
	code(s string) string
	link(label, href string) string
}

func formatterFor(f sink.Format) formatter {
	if f == sink.FormatText {
		return plainFormatter{}
	}
	return htmlFormatter{}
}

type htmlFormatter struct{}

func (htmlFormatter) text(s string) string   { return html.EscapeString(s) }
func (htmlFormatter) bold(s string) string   { return "<b>" + html.EscapeString(s) + "</b>" }
func (htmlFormatter) italic(s string) string { return "<i>" + html.EscapeString(s) + "</i>" }
func (htmlFormatter) code(s string) string   { return "<code>" + html.EscapeString(s) + "</code>" }

func (htmlFormatter) link(label, href string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(label))
}

type plainFormatter struct{}

func (plainFormatter) text(s string) string   { return s }
func (plainFormatter) bold(s string) string   { return s }
func (plainFormatter) italic(s string) string { return s }
func (plainFormatter) code(s string) string   { return s }

func (plainFormatter) link(label, href string) string {
	if href == "" {
		return label
	}
	return label + ": " + href
}
