package syncengine

import jsoniter "github.com/json-iterator/go"

// eventJSON is the jsoniter configuration used to emit event payloads:
// stdlib-compatible encoding, which is all this package needs since every
// event is a small, fixed-shape struct.
var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func marshalEvent(v interface{}) string {
	b, err := eventJSON.Marshal(v)
	if err != nil {
		// A fixed-shape struct of strings/ints cannot fail to marshal;
		// this only guards against a future field type mistake.
		return `{"type":"error","message":"failed to encode event"}`
	}
	return string(b)
}

// stateEvent is the bare {"state":"<name>"} shape, reserved for the
// configured/idle bootstraps and for StateJSON's snapshot.
func stateEvent(s State) string {
	return marshalEvent(struct {
		State State `json:"state"`
	}{s})
}

// typedStateEvent is the canonical {"type":"state","state":"<name>"} shape
// emitted for every in-run state transition, so a host dispatching on
// "type" can recognize it alongside the other typed events.
func typedStateEvent(s State) string {
	return marshalEvent(struct {
		Type  string `json:"type"`
		State State  `json:"state"`
	}{"state", s})
}

func syncStartEvent(reason string) string {
	return marshalEvent(struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{"sync_start", reason})
}

func syncQueuedEvent(reason string) string {
	return marshalEvent(struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{"sync_queued", reason})
}

func pullPhaseEvent(attempt int) string {
	return marshalEvent(struct {
		Type    string `json:"type"`
		Phase   string `json:"phase"`
		Attempt int    `json:"attempt"`
	}{"phase", "pull", attempt})
}

func pushPhaseEvent() string {
	return marshalEvent(struct {
		Type  string `json:"type"`
		Phase string `json:"phase"`
	}{"phase", "push"})
}

func syncRetryEvent(attempt int) string {
	return marshalEvent(struct {
		Type    string `json:"type"`
		Attempt int    `json:"attempt"`
	}{"sync_retry", attempt})
}

func retryScheduledEvent(attempt, delayMs int, message string) string {
	return marshalEvent(struct {
		Type    string `json:"type"`
		Attempt int    `json:"attempt"`
		DelayMs int    `json:"delayMs"`
		Message string `json:"message"`
	}{"retry_scheduled", attempt, delayMs, message})
}

func httpEvent(phase string, status int) string {
	return marshalEvent(struct {
		Type   string `json:"type"`
		Phase  string `json:"phase"`
		Status int    `json:"status"`
	}{"http", phase, status})
}

func authRequiredEvent() string {
	return marshalEvent(struct {
		Type string `json:"type"`
	}{"auth_required"})
}

func authFailedEvent(message string) string {
	return marshalEvent(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"auth_failed", message})
}

func errorEvent(message string) string {
	return marshalEvent(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"error", message})
}

func syncCancelledEvent() string {
	return marshalEvent(struct {
		Type string `json:"type"`
	}{"sync_cancelled"})
}
