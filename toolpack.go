package core

import (
	"context"
	"encoding/json"
)

// ConflictPolicy governs what happens when two ToolPacks expose a tool
// under the same name.
type ConflictPolicy string

const (
	// ConflictReject fails registration outright on any name clash.
	ConflictReject ConflictPolicy = "reject"
	// ConflictFirstWins keeps the pack that registered the name first, unless
	// the newcomer has a strictly higher Priority, in which case it replaces it.
	ConflictFirstWins ConflictPolicy = "first-wins"
	// ConflictNamespacePrefix always exposes the tool as "namespace.tool-name",
	// sidestepping collisions entirely.
	ConflictNamespacePrefix ConflictPolicy = "namespace-prefix"
)

// PackCapabilities declares what kind of side effects a pack's tools may
// have. It is declarative metadata: no guard or executor in this package
// reads it before execution.
type PackCapabilities struct {
	NetworkAccess bool
	AllowedPaths  []string
	Audit         bool
}

// PackedTool is one tool inside a ToolPack: its wire definition plus the
// handler that executes it. Input is the already-normalized, already-
// guarded argument payload.
type PackedTool struct {
	Definition ToolDefinition
	Invoke     func(ctx context.Context, input json.RawMessage) (ToolOutput, error)
}

// ToolPack is a versioned, namespaced bundle of tools registered into a
// ToolManager. Conflict resolution and audit both operate at the pack
// level, not the individual tool level.
type ToolPack struct {
	ID             string
	Namespace      string
	Version        string
	Priority       int
	ConflictPolicy ConflictPolicy
	Capabilities   PackCapabilities
	Tools          []PackedTool
	// Audit, if set, is invoked with the raw input before every tool
	// execution in this pack. ToolManager stores it per registered tool;
	// the built-in packs leave it nil.
	Audit func(toolName string, input json.RawMessage)
}
