package domain

import "time"

// TimestampState is the entry-form timestamp mode.
type TimestampState int

const (
	// TimestampAuto stamps entries with the capture time.
	TimestampAuto TimestampState = iota
	// TimestampEditing uses a timestamp the user is typing.
	TimestampEditing
	// TimestampLocked reuses a fixed timestamp for every following entry.
	TimestampLocked
)

func (s TimestampState) String() string {
	switch s {
	case TimestampEditing:
		return "editing"
	case TimestampLocked:
		return "locked"
	default:
		return "auto"
	}
}

// TimestampMode decides which timestamp an entry is recorded with. The zero
// value is Auto.
type TimestampMode struct {
	state TimestampState
	value time.Time
}

// AutoTimestamp returns the capture-time mode.
func AutoTimestamp() TimestampMode { return TimestampMode{} }

// EditingTimestamp returns the mode for a timestamp being typed.
func EditingTimestamp(v time.Time) TimestampMode {
	return TimestampMode{state: TimestampEditing, value: v}
}

// LockedTimestamp returns the mode that pins v.
func LockedTimestamp(v time.Time) TimestampMode {
	return TimestampMode{state: TimestampLocked, value: v}
}

// State returns the current mode.
func (m TimestampMode) State() TimestampState { return m.state }

// Value returns the edited or locked timestamp; zero in Auto.
func (m TimestampMode) Value() time.Time { return m.value }

// Edit switches to Editing with v. A locked timestamp must be unlocked first.
func (m TimestampMode) Edit(v time.Time) TimestampMode {
	if m.state == TimestampLocked {
		return m
	}
	return EditingTimestamp(v)
}

// Lock pins the edited value. Locking from Auto pins now.
func (m TimestampMode) Lock(now time.Time) TimestampMode {
	return LockedTimestamp(m.Resolve(now))
}

// Unlock returns to Auto.
func (m TimestampMode) Unlock() TimestampMode { return AutoTimestamp() }

// Resolve returns the timestamp to record. Editing with nothing typed yet
// falls back to now.
func (m TimestampMode) Resolve(now time.Time) time.Time {
	switch m.state {
	case TimestampEditing, TimestampLocked:
		if !m.value.IsZero() {
			return m.value
		}
	}
	return now
}

// AfterRecord returns the mode for the next entry: an edited timestamp is
// used once, a locked one is kept.
func (m TimestampMode) AfterRecord() TimestampMode {
	if m.state == TimestampEditing {
		return AutoTimestamp()
	}
	return m
}
