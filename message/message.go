// Package message renders announcement text from a template and a set of
// named placeholder values.
//
// Templates use single-brace tokens such as {channel} or {title}. Tokens with a
// value in the Context are substituted; tokens without one are kept verbatim so
// a misconfigured template is visible in the posted text instead of failing
// silently. The two-character escape `\n` in the template becomes a line break
// before substitution; substituted values are inserted as-is.
package message

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasttemplate"
)

// Placeholder names understood by the default templates.
const (
	Channel     = "channel"
	DisplayName = "display_name"
	Title       = "title"
	Game        = "game"
	FanName     = "fanname"
	VideoID     = "video_id"
)

const (
	startTag = "{"
	endTag   = "}"
)

// Context maps placeholder names to their values.
type Context map[string]string

// Render resolves tmpl against ctx. It never fails: an unterminated "{" or an
// unknown token is emitted unchanged.
func Render(tmpl string, ctx Context) string {
	tmpl = ExpandNewlines(tmpl)
	if !strings.Contains(tmpl, startTag) {
		return tmpl
	}
	out, err := fasttemplate.ExecuteFuncStringWithErr(tmpl, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		// fasttemplate cuts from the first "{", so a stray one before a real
		// token ends up inside tag. Emit it as text and resolve the rest.
		lead, tag := splitTag(tag)
		if v, ok := ctx[tag]; ok {
			return io.WriteString(w, lead+v)
		}
		return io.WriteString(w, lead+startTag+tag+endTag)
	})
	if err != nil {
		// only reachable if the writer fails, which a bytes buffer does not
		return tmpl
	}
	return out
}

// splitTag separates the token name, which follows the last "{", from any
// literal text fasttemplate included before it.
func splitTag(tag string) (lead, name string) {
	i := strings.LastIndex(tag, startTag)
	if i < 0 {
		return "", tag
	}
	return startTag + tag[:i], tag[i+len(startTag):]
}

// ExpandNewlines replaces the literal escape `\n` with a line break.
func ExpandNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// Stats summarizes a rendered message for operator previews.
type Stats struct {
	Chars    int
	Newlines int
}

// Measure counts characters (runes) and line breaks in text.
func Measure(text string) Stats {
	return Stats{
		Chars:    utf8.RuneCountInString(text),
		Newlines: strings.Count(text, "\n"),
	}
}

// Unresolved lists the tokens in tmpl that ctx does not provide, in order of
// first appearance.
func Unresolved(tmpl string, ctx Context) []string {
	var missing []string
	seen := make(map[string]bool)
	rest := ExpandNewlines(tmpl)
	for {
		i := strings.Index(rest, startTag)
		if i < 0 {
			return missing
		}
		rest = rest[i+len(startTag):]
		j := strings.Index(rest, endTag)
		if j < 0 {
			return missing
		}
		_, tag := splitTag(rest[:j])
		rest = rest[j+len(endTag):]
		if _, ok := ctx[tag]; ok || seen[tag] {
			continue
		}
		seen[tag] = true
		missing = append(missing, tag)
	}
}

// Preview is a rendered message with its Stats.
type Preview struct {
	Text string
	Stats
}

// RenderPreview renders tmpl against ctx and measures the result.
func RenderPreview(tmpl string, ctx Context) Preview {
	text := Render(tmpl, ctx)
	return Preview{Text: text, Stats: Measure(text)}
}

// Fits reports whether the preview is within limit characters.
func (p Preview) Fits(limit int) bool { return limit <= 0 || p.Chars <= limit }
