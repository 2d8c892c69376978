package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// InputNormalizer rewrites a tool call's input before guards see it.
// Normalizers run in registration order; a failure is swallowed and the
// next normalizer sees the last good input (per the tool subsystem's
// swallow-and-continue contract).
type InputNormalizer interface {
	Normalize(ctx *ToolExecCtx, input json.RawMessage) (json.RawMessage, error)
}

var globMeta = regexp.MustCompile(`[*?\[\]{}]`)

var backupSuffixes = []string{".bak", ".backup", ".orig", ".tmp"}

// PathNormalizer resolves search/read tool inputs against a working
// directory: directories pointing at files are rewritten to the parent,
// glob patterns without meta-characters are wrapped into a recursive glob,
// and known backup suffixes are resolved to their source file.
type PathNormalizer struct {
	WorkDir string
	// exists is overridable in tests; defaults to a real filesystem stat.
	Exists func(path string) bool
}

func (n *PathNormalizer) Normalize(ctx *ToolExecCtx, input json.RawMessage) (json.RawMessage, error) {
	switch ctx.ToolName {
	case "search", "grep_search":
		return n.normalizeDirectory(input)
	case "glob_search":
		return n.normalizeGlob(input)
	case "fs_read":
		return n.normalizeRead(ctx, input)
	case "shell_exec":
		return n.normalizeShell(input)
	default:
		return input, nil
	}
}

func (n *PathNormalizer) exists(path string) bool {
	if n.Exists != nil {
		return n.Exists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}

func (n *PathNormalizer) normalizeDirectory(input json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	dir, _ := params["directory"].(string)
	if dir == "" {
		return input, nil
	}
	if n.exists(dir) && filepath.Ext(dir) != "" {
		params["directory"] = filepath.Dir(dir)
	} else if !n.exists(dir) && filepath.Ext(dir) != "" {
		params["directory"] = filepath.Dir(dir)
	} else if !filepath.IsAbs(dir) {
		params["directory"] = filepath.Join(n.WorkDir, dir)
	}
	return marshalMetadata(params), nil
}

func (n *PathNormalizer) normalizeGlob(input json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	pattern, _ := params["pattern"].(string)
	if pattern != "" && !globMeta.MatchString(pattern) {
		params["pattern"] = "**/*" + pattern + "*"
	}
	return marshalMetadata(params), nil
}

func (n *PathNormalizer) normalizeRead(ctx *ToolExecCtx, input json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	path, _ := params["path"].(string)
	if path == "" {
		return input, nil
	}

	for _, suffix := range backupSuffixes {
		if strings.HasSuffix(path, suffix) {
			src := strings.TrimSuffix(path, suffix)
			if n.exists(src) {
				path = src
			}
			ctx.Meta.Set("normalizer", "build_artifact:"+path, true)
			break
		}
	}
	if strings.HasSuffix(path, ".js") {
		for _, alt := range []string{".ts", ".tsx"} {
			candidate := strings.TrimSuffix(path, ".js") + alt
			if n.exists(candidate) {
				path = candidate
				break
			}
		}
	}
	if isBuildArtifact(path) {
		ctx.Meta.Set("normalizer", "build_artifact:"+path, true)
	}
	params["path"] = path
	return marshalMetadata(params), nil
}

func isBuildArtifact(path string) bool {
	if strings.Contains(path, "/dist/") || strings.Contains(path, "/build/") {
		return true
	}
	if strings.HasSuffix(path, ".map") || strings.HasSuffix(path, ".min.js") {
		return true
	}
	for _, suffix := range backupSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func (n *PathNormalizer) normalizeShell(input json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	if cwd, _ := params["cwd"].(string); cwd == "" {
		params["cwd"] = "."
	}
	return marshalMetadata(params), nil
}

// readLimitBaseline is the per-tier baseline line count for fs_read before
// file-size and repeat-read adjustments.
var readLimitBaseline = map[Tier]int{TierSmall: 180, TierMedium: 300, TierLarge: 500}

const maxAdaptiveReadLimit = 1000

// AdaptiveReadLimiter computes a per-tier, per-file read limit for fs_read
// calls, boosted by file size and by repeat reads of the same path. It is
// stateful (tracks read counts) so one instance must be scoped to a single
// run, not shared across runs.
type AdaptiveReadLimiter struct {
	Tier Tier
	// FileLines returns the total line count of path, or 0/false if unknown.
	FileLines func(path string) (int, bool)

	mu        sync.Mutex
	readCount map[string]int
}

func (n *AdaptiveReadLimiter) Normalize(ctx *ToolExecCtx, input json.RawMessage) (json.RawMessage, error) {
	if ctx.ToolName != "fs_read" {
		return input, nil
	}
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	path, _ := params["path"].(string)
	if path == "" {
		return input, nil
	}

	n.mu.Lock()
	if n.readCount == nil {
		n.readCount = make(map[string]int)
	}
	n.readCount[path]++
	attempts := n.readCount[path]
	n.mu.Unlock()

	limit := readLimitBaseline[n.Tier]
	if limit == 0 {
		limit = readLimitBaseline[TierMedium]
	}

	if n.FileLines != nil {
		if lines, ok := n.FileLines(path); ok {
			switch {
			case lines <= 500:
				limit = lines
			case lines >= 3000:
				limit = limit * 2
			}
		}
	}

	switch {
	case attempts >= 5:
		limit = int(float64(limit) * 1.6)
	case attempts >= 3:
		limit = int(float64(limit) * 1.4)
	}
	if limit > maxAdaptiveReadLimit {
		limit = maxAdaptiveReadLimit
	}

	params["limit"] = limit
	return marshalMetadata(params), nil
}

// UnicodeNormalizer applies NFKC normalization to every string value found
// at the top level of the input, guarding against Unicode-confusable
// prompt-injection payloads hiding in tool arguments.
type UnicodeNormalizer struct{}

func (UnicodeNormalizer) Normalize(_ *ToolExecCtx, input json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return input, nil
	}
	for k, v := range params {
		if s, ok := v.(string); ok {
			params[k] = norm.NFKC.String(s)
		}
	}
	return marshalMetadata(params), nil
}
