package process

import "time"

// State is the current activity of a job process.
type State string

const (
	// StateIdle means the process is waiting before the next search.
	StateIdle State = "idle"
	// StateSearching means the job-queue directory is being listed and locks tried.
	StateSearching State = "searching"
	// StateLocked means a job document is held but not yet parsed.
	StateLocked State = "locked"
	// StateSettingUp means the job document is validated and its mods applied.
	StateSettingUp State = "setting_up"
	// StateSimulating means the external solver is running.
	StateSimulating State = "simulating"
	// StateCollecting means post operations are extracting results.
	StateCollecting State = "collecting"
	// StateArchiving means clean ops run and the job document is renamed and unlocked.
	StateArchiving State = "archiving"
)

// States lists every state in lifecycle order.
var States = []State{
	StateIdle,
	StateSearching,
	StateLocked,
	StateSettingUp,
	StateSimulating,
	StateCollecting,
	StateArchiving,
}

// Stats is a snapshot of process counters.
type Stats struct {
	State      State
	Processed  int64
	Failed     int64
	CurrentJob string
	StartedAt  time.Time
}
