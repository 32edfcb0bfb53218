package stats

import "testing"

func TestSession_AddUsage(t *testing.T) {
	s := &Session{}
	s.AddUsage(100, 40)
	s.AddUsage(10, 5)

	snap := s.Snapshot()
	if snap.InputTokens != 110 || snap.OutputTokens != 45 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSession_AddToolCall(t *testing.T) {
	s := &Session{}
	s.AddToolCall(false)
	s.AddToolCall(true)
	s.AddToolCall(true)

	snap := s.Snapshot()
	if snap.ToolCalls != 3 {
		t.Fatalf("ToolCalls = %d, want 3", snap.ToolCalls)
	}
	if snap.ToolErrors != 2 {
		t.Fatalf("ToolErrors = %d, want 2", snap.ToolErrors)
	}
}

func TestSession_Reset(t *testing.T) {
	s := &Session{}
	s.AddUsage(5, 5)
	s.AddTurn()
	s.AddToolCall(true)
	s.Reset()

	snap := s.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("expected zeroed snapshot after Reset, got %+v", snap)
	}
}

func TestSession_AgentType(t *testing.T) {
	s := &Session{}
	if s.AgentType() != "" {
		t.Fatalf("AgentType = %q, want empty before set", s.AgentType())
	}
	s.SetAgentType("codex")
	if s.AgentType() != "codex" {
		t.Fatalf("AgentType = %q, want codex", s.AgentType())
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Fatalf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestGlobal_IsSharedAcrossCallers(t *testing.T) {
	Global.Reset()
	Global.AddTurn()
	if Global.Snapshot().Turns != 1 {
		t.Fatal("Global should retain state across calls within a process")
	}
	Global.Reset()
}
