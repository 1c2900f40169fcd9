package accounts

import "time"

// Step names reported on a Run's event channel.
const (
	StepValidate       = "validate"
	StepResolveClass   = "resolve_class"
	StepCreateAccount  = "create_account"
	StepLinkCredential = "link_credential"
	StepWriteProfile   = "write_profile"
	StepWriteClass     = "write_class"
	StepWriteStudent   = "write_student"
	StepWriteMember    = "write_member"
	StepSync           = "sync"
	StepReadBack       = "read_back"
)

// StepStatus is where a step is in its lifecycle.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	// StepTolerated marks a failure the flow continued past.
	StepTolerated   StepStatus = "tolerated"
	StepCompensated StepStatus = "compensated"
	// StepCompensationFailed is reported when undoing a step failed. The
	// run still returns the error that triggered compensation.
	StepCompensationFailed StepStatus = "compensation_failed"
)

// StepEvent is one progress report from a registration.
type StepEvent struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Err    error      `json:"-"`
	At     time.Time  `json:"at"`
}

// eventBuffer holds every event a single run can emit, so a run never
// blocks on a slow or absent reader.
const eventBuffer = 64
