package daemon

// SleepInhibitor holds or releases a system-wide sleep assertion. Both
// calls are idempotent.
type SleepInhibitor interface {
	Prevent() error
	Allow() error
}
