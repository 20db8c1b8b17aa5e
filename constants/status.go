package constants

// RunStatus is the canonical status for rows in parse_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusQueued  RunStatus = "QUEUED"  // accepted by the batch queue
	RunStatusRunning RunStatus = "RUNNING" // engine running
	RunStatusDone    RunStatus = "DONE"    // result stored, any tier
	RunStatusFailed  RunStatus = "FAILED"  // the response could not be read or stored
)

// Sample lengths, in runes, for the raw response kept with a stored run.
const (
	PartialSampleRunes = 200
	FailedSampleRunes  = 500
)
