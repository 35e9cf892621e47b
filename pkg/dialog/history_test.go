package dialog

import "testing"

func TestHistoryTurnsArePaired(t *testing.T) {
	h := NewHistory()
	h.AddTurn("hello", "hi there")
	h.AddTurn("how are you", "fine")

	if h.Len() != 4 {
		t.Fatalf("expected 4 messages, got %d", h.Len())
	}
	if h.Len()%2 != 0 {
		t.Error("history length must stay even after successful turns")
	}

	msgs := h.Snapshot()
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[2].Content != "how are you" {
		t.Errorf("unexpected content: %q", msgs[2].Content)
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory()
	h.AddTurn("a", "b")

	snap := h.Snapshot()
	snap[0].Content = "mutated"

	if h.Snapshot()[0].Content != "a" {
		t.Error("snapshot mutation leaked into the history")
	}
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory()
	h.AddTurn("a", "b")
	h.Reset()
	if h.Len() != 0 {
		t.Errorf("expected empty history after reset, got %d", h.Len())
	}
}
