package core

import "testing"

func TestUserMessage(t *testing.T) {
	msg := UserMessage("hello", 0)
	if msg.Role != "user" {
		t.Errorf("Role = %q, want %q", msg.Role, "user")
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want %q", msg.Content, "hello")
	}
	if msg.ToolCallID != "" {
		t.Errorf("ToolCallID = %q, want empty", msg.ToolCallID)
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("ToolCalls = %v, want empty", msg.ToolCalls)
	}
	if msg.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", msg.Iteration)
	}
}

func TestSystemMessage(t *testing.T) {
	msg := SystemMessage("you are helpful", 0)
	if msg.Role != "system" {
		t.Errorf("Role = %q, want %q", msg.Role, "system")
	}
	if msg.Content != "you are helpful" {
		t.Errorf("Content = %q, want %q", msg.Content, "you are helpful")
	}
}

func TestAssistantMessage(t *testing.T) {
	calls := []ToolCall{{ID: "call-1", Name: "search"}}
	msg := AssistantMessage("sure thing", calls, 2)
	if msg.Role != "assistant" {
		t.Errorf("Role = %q, want %q", msg.Role, "assistant")
	}
	if msg.Content != "sure thing" {
		t.Errorf("Content = %q, want %q", msg.Content, "sure thing")
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "search" {
		t.Errorf("ToolCalls = %v, want one call named search", msg.ToolCalls)
	}
	if msg.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", msg.Iteration)
	}
}

func TestToolMessage(t *testing.T) {
	msg := ToolMessage("call-123", "result data", 1)
	if msg.Role != "tool" {
		t.Errorf("Role = %q, want %q", msg.Role, "tool")
	}
	if msg.Content != "result data" {
		t.Errorf("Content = %q, want %q", msg.Content, "result data")
	}
	if msg.ToolCallID != "call-123" {
		t.Errorf("ToolCallID = %q, want %q", msg.ToolCallID, "call-123")
	}
}

func TestToolMessageFields(t *testing.T) {
	callID := "call-abc"
	content := "tool output"
	msg := ToolMessage(callID, content, 0)

	// callID must go to ToolCallID, not Content
	if msg.ToolCallID != callID {
		t.Errorf("ToolCallID = %q, want %q (callID)", msg.ToolCallID, callID)
	}
	if msg.Content == callID {
		t.Error("Content contains callID; callID should only be in ToolCallID")
	}

	// content must go to Content, not ToolCallID
	if msg.Content != content {
		t.Errorf("Content = %q, want %q (content)", msg.Content, content)
	}
	if msg.ToolCallID == content {
		t.Error("ToolCallID contains content; content should only be in Content")
	}
}

func TestMessageConstructorsEmpty(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role string
	}{
		{"UserMessage", UserMessage("", 0), "user"},
		{"SystemMessage", SystemMessage("", 0), "system"},
		{"AssistantMessage", AssistantMessage("", nil, 0), "assistant"},
		{"ToolMessage", ToolMessage("", "", 0), "tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role != tt.role {
				t.Errorf("%s(\"\").Role = %q, want %q", tt.name, tt.msg.Role, tt.role)
			}
		})
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20}
	b := Usage{InputTokens: 5, OutputTokens: 15}
	sum := a.Add(b)
	if sum.InputTokens != 15 || sum.OutputTokens != 35 {
		t.Errorf("Add = %+v, want {15 35}", sum)
	}
}

func TestTierNext(t *testing.T) {
	tests := []struct {
		tier     Tier
		wantNext Tier
		wantOK   bool
	}{
		{TierSmall, TierMedium, true},
		{TierMedium, TierLarge, true},
		{TierLarge, TierLarge, false},
	}
	for _, tt := range tests {
		next, ok := tt.tier.Next()
		if next != tt.wantNext || ok != tt.wantOK {
			t.Errorf("%s.Next() = (%s, %v), want (%s, %v)", tt.tier, next, ok, tt.wantNext, tt.wantOK)
		}
	}
}
