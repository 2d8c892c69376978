package core

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// sanitizeMarkdown parses md with goldmark and re-emits it as plain,
// LLM-safe text: raw HTML blocks and inline HTML are dropped (a common
// injection vector when tool output or an untrusted fact ends up embedded
// back into a prompt), and images are replaced with a bracketed
// placeholder rather than their (often broken, always non-renderable-to-
// an-LLM) alt text and URL. Everything else round-trips close to
// verbatim. Grounded on the same goldmark AST-walk idiom the teacher uses
// for its Telegram markdown dialect, retargeted from "render to a chat
// dialect" to "strip unsafe/useless nodes before reuse in a prompt."
func sanitizeMarkdown(md string) string {
	source := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHTMLBlock, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		case ast.KindImage:
			buf.WriteString("[image omitted]")
			return ast.WalkSkipChildren, nil
		case ast.KindText:
			tn := n.(*ast.Text)
			buf.Write(tn.Segment.Value(source))
			if tn.SoftLineBreak() || tn.HardLineBreak() {
				buf.WriteString("\n")
			}
		case ast.KindString:
			buf.Write(n.(*ast.String).Value)
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			// Code blocks keep their content as raw Lines rather than Text
			// children, so they need explicit handling.
			if bn, ok := n.(interface{ Lines() *text.Segments }); ok {
				lines := bn.Lines()
				for i := 0; i < lines.Len(); i++ {
					buf.Write(lines.At(i).Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return strings.TrimSpace(md)
	}
	return strings.TrimSpace(buf.String())
}
