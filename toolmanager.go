package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// registeredTool is one exposed-name entry in the ToolManager.
type registeredTool struct {
	packID    string
	priority  int
	audit     func(toolName string, input json.RawMessage)
	tool      PackedTool
	sourceName string // original (pre-prefix) tool name, for audit/trace
}

// ToolManager maintains the mapping from exposed tool name to the pack that
// serves it, and dispatches execution. Generalizes the flat tool registry
// into a namespaced, versioned, conflict-aware catalog.
type ToolManager struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	packs map[string]*ToolPack
}

// NewToolManager creates an empty manager.
func NewToolManager() *ToolManager {
	return &ToolManager{tools: make(map[string]registeredTool), packs: make(map[string]*ToolPack)}
}

// Register scans pack's tools and computes an exposed name for each by
// applying the pack's conflict policy against the current registry.
// Higher priority packs take precedence on ties under first-wins.
func (m *ToolManager) Register(pack *ToolPack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range pack.Tools {
		exposedName := t.Definition.Name
		if pack.ConflictPolicy == ConflictNamespacePrefix {
			exposedName = pack.Namespace + "." + t.Definition.Name
		}

		existing, clash := m.tools[exposedName]
		if clash {
			switch pack.ConflictPolicy {
			case ConflictReject:
				return fmt.Errorf("toolmanager: tool %q already registered by pack %q", exposedName, existing.packID)
			case ConflictFirstWins:
				if existing.priority >= pack.Priority {
					continue
				}
				// Falls through: higher-priority newcomer replaces the entry.
			case ConflictNamespacePrefix:
				// Prefixed name collision is a genuine programming error
				// (same namespace registered twice); still reject.
				return fmt.Errorf("toolmanager: prefixed tool %q already registered", exposedName)
			}
		}

		def := t.Definition
		def.Name = exposedName
		m.tools[exposedName] = registeredTool{
			packID:     pack.ID,
			priority:   pack.Priority,
			audit:      pack.Audit,
			tool:       PackedTool{Definition: def, Invoke: t.Invoke},
			sourceName: t.Definition.Name,
		}
	}
	m.packs[pack.ID] = pack
	return nil
}

// Unregister removes every tool contributed by the named pack, along with
// the pack itself.
func (m *ToolManager) Unregister(packID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, rt := range m.tools {
		if rt.packID == packID {
			delete(m.tools, name)
		}
	}
	delete(m.packs, packID)
}

// Definitions returns the wire-shape tool definitions for every registered
// tool, for inclusion in a ChatRequest.
func (m *ToolManager) Definitions() []ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(m.tools))
	for _, rt := range m.tools {
		defs = append(defs, rt.tool.Definition)
	}
	return defs
}

// Execute dispatches a tool call by its exposed name, invoking the owning
// pack's audit callback with the raw input before execution.
func (m *ToolManager) Execute(ctx context.Context, name string, input json.RawMessage) (ToolOutput, error) {
	m.mu.RLock()
	rt, ok := m.tools[name]
	m.mu.RUnlock()
	if !ok {
		return ToolOutput{Success: false, Error: "unknown tool: " + name}, nil
	}
	if rt.audit != nil {
		rt.audit(rt.sourceName, input)
	}
	return rt.tool.Invoke(ctx, input)
}
