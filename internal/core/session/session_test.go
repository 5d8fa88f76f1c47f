package session

import "testing"

func TestNewStatic_SessionStable(t *testing.T) {
	p := NewStatic("alice")
	if p.ActorID() != "alice" {
		t.Errorf("expected actor alice, got %s", p.ActorID())
	}
	first := p.SessionID()
	if first == "" {
		t.Fatal("expected a session id")
	}
	if p.SessionID() != first {
		t.Error("session id changed between calls")
	}
}

func TestNewStatic_DefaultActor(t *testing.T) {
	t.Setenv("USER", "")
	p := NewStatic("")
	if p.ActorID() != "anonymous" {
		t.Errorf("expected anonymous, got %s", p.ActorID())
	}
}
