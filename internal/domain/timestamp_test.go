package domain_test

import (
	"testing"
	"time"

	"bolus/internal/domain"
)

func TestTimestampMode(t *testing.T) {
	now := at(10, 12)
	typed := at(9, 7)

	m := domain.AutoTimestamp()
	if got := m.Resolve(now); !got.Equal(now) {
		t.Fatalf("auto: expected now, got %v", got)
	}

	m = m.Edit(typed)
	if m.State() != domain.TimestampEditing {
		t.Fatalf("expected editing, got %s", m.State())
	}
	if got := m.Resolve(now); !got.Equal(typed) {
		t.Fatalf("editing: expected typed value, got %v", got)
	}
	if next := m.AfterRecord(); next.State() != domain.TimestampAuto {
		t.Fatalf("edited timestamp must be used once, got %s", next.State())
	}

	m = m.Lock(now)
	if m.State() != domain.TimestampLocked {
		t.Fatalf("expected locked, got %s", m.State())
	}
	if m.Edit(now).State() != domain.TimestampLocked {
		t.Fatal("locked timestamp must ignore edits")
	}
	if got := m.AfterRecord().Resolve(now); !got.Equal(typed) {
		t.Fatalf("locked: expected typed value to persist, got %v", got)
	}

	if m.Unlock().State() != domain.TimestampAuto {
		t.Fatal("unlock must return to auto")
	}
}

func TestTimestampMode_EditingBlankFallsBack(t *testing.T) {
	now := at(10, 12)
	var blank time.Time
	m := domain.AutoTimestamp().Edit(blank)
	if got := m.Resolve(now); !got.Equal(now) {
		t.Fatalf("expected fallback to now, got %v", got)
	}
}
