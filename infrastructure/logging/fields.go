package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// TaskID adds a supervised task ID field.
func TaskID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("task_id", id)
	}
}

// State adds a supervisor state field.
func State(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", s)
	}
}

// Transition adds from_state and to_state fields.
func Transition(from, to string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", from).Str("to_state", to)
	}
}

// Generation adds a ledger generation field.
func Generation(g uint64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("generation", int64(g)) // #nosec G115 -- generations stay far below 2^63
	}
}

// Capability adds capability kind and name fields.
func Capability(kind, name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("capability_kind", kind).Str("capability", name)
	}
}

// PID adds a process ID field.
func PID(pid int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("pid", pid)
	}
}

// Restarts adds a restart counter field.
func Restarts(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("restarts", n)
	}
}

// SignalID adds a lifecycle signal ID field.
func SignalID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("signal_id", id)
	}
}

// ToolName adds a tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Path adds a file path field.
func Path(p string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("path", p)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an integer field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}

// Bool adds a boolean field with custom key.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, value)
	}
}
