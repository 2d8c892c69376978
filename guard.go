package core

import (
	"fmt"
	"regexp"
	"strings"
)

// GuardVerdictKind is the tagged-variant result of a ToolGuard check, per
// the tagged-variant design (no callable-hash, no bare booleans).
type GuardVerdictKind string

const (
	VerdictAllow     GuardVerdictKind = "allow"
	VerdictSanitize  GuardVerdictKind = "sanitize"
	VerdictReject    GuardVerdictKind = "reject"
)

// GuardVerdict is returned by both ValidateInput and ValidateOutput.
// Sanitized replaces the text outright (input or output, depending on
// which hook produced it); Reason is surfaced to the caller on Reject.
type GuardVerdict struct {
	Kind      GuardVerdictKind
	Sanitized string
	Reason    string
}

func Allow() GuardVerdict    { return GuardVerdict{Kind: VerdictAllow} }
func Reject(reason string) GuardVerdict {
	return GuardVerdict{Kind: VerdictReject, Reason: reason}
}
func Sanitize(text string) GuardVerdict {
	return GuardVerdict{Kind: VerdictSanitize, Sanitized: text}
}

// ToolGuard validates a tool's input before execution and its output after.
// Distinct from middleware: guards see only the single tool call's input/
// output text, never the full message history.
type ToolGuard interface {
	Name() string
	ValidateInput(ctx *ToolExecCtx, input string) GuardVerdict
	ValidateOutput(ctx *ToolExecCtx, output string) GuardVerdict
}

// ToolKeywordGuard rejects tool input or output containing any of a
// configured denylist of substrings (case-insensitive), e.g. destructive
// shell commands or secrets-looking patterns. Distinct from the message-
// level KeywordGuard, which screens LLM-bound chat content rather than
// tool call payloads.
type ToolKeywordGuard struct {
	GuardName      string
	InputDenylist  []string
	OutputDenylist []string
}

func (g *ToolKeywordGuard) Name() string { return g.GuardName }

func (g *ToolKeywordGuard) ValidateInput(_ *ToolExecCtx, input string) GuardVerdict {
	return checkDenylist(input, g.InputDenylist)
}

func (g *ToolKeywordGuard) ValidateOutput(_ *ToolExecCtx, output string) GuardVerdict {
	return checkDenylist(output, g.OutputDenylist)
}

func checkDenylist(text string, denylist []string) GuardVerdict {
	lower := strings.ToLower(text)
	for _, word := range denylist {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return Reject("matched denylisted term: " + word)
		}
	}
	return Allow()
}

// RedactionGuard applies a list of regexes to tool output, replacing every
// match with "[REDACTED]". Never rejects — always sanitizes (or allows
// unchanged if nothing matched).
type RedactionGuard struct {
	GuardName string
	Patterns  []*regexp.Regexp
}

func (g *RedactionGuard) Name() string { return g.GuardName }

func (g *RedactionGuard) ValidateInput(_ *ToolExecCtx, input string) GuardVerdict {
	return Allow()
}

func (g *RedactionGuard) ValidateOutput(_ *ToolExecCtx, output string) GuardVerdict {
	redacted := output
	changed := false
	for _, p := range g.Patterns {
		if p.MatchString(redacted) {
			redacted = p.ReplaceAllString(redacted, "[REDACTED]")
			changed = true
		}
	}
	if !changed {
		return Allow()
	}
	return Sanitize(redacted)
}

// MaxOutputLengthGuard sanitizes (truncates) any tool output exceeding a
// configured character budget, annotating the cut.
type MaxOutputLengthGuard struct {
	GuardName string
	MaxChars  int
}

func (g *MaxOutputLengthGuard) Name() string { return g.GuardName }

func (g *MaxOutputLengthGuard) ValidateInput(_ *ToolExecCtx, _ string) GuardVerdict { return Allow() }

func (g *MaxOutputLengthGuard) ValidateOutput(_ *ToolExecCtx, output string) GuardVerdict {
	if g.MaxChars <= 0 || len(output) <= g.MaxChars {
		return Allow()
	}
	discarded := len(output) - g.MaxChars
	return Sanitize(output[:g.MaxChars] + fmt.Sprintf("\n\n[truncated, %d characters discarded — retrievable via archive_recall]", discarded))
}
