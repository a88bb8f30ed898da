package syncengine

// State is one of the nine observable sync-engine states.
type State string

const (
	StateIdle           State = "idle"
	StateConfigured     State = "configured"
	StateSyncRequested  State = "sync_requested"
	StateSyncing        State = "syncing"
	StateRetryScheduled State = "retry_scheduled"
	StateAuthRequired   State = "auth_required"
	StateAuthFailed     State = "auth_failed"
	StateDone           State = "done"
	StateError          State = "error"
)
