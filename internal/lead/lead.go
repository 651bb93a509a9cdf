package lead

import "time"

// Status represents the lifecycle state of a lead row
type Status string

const (
	// StatusEmpty is a freshly entered row that has not been picked up yet
	StatusEmpty      Status = ""
	StatusProcessing Status = "Processing"
	StatusRunning    Status = "Running"
	StatusDone       Status = "Done"
	StatusError      Status = "Error"
)

// SlotCount is the number of scheduled follow-up emails per lead
const SlotCount = 3

// Slot is one scheduled follow-up email
type Slot struct {
	DueAt     time.Time  `json:"due_at"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// Lead is one contact row. Row is the key in the store and stands in
// for the row position of the original tabular source.
type Lead struct {
	Row       uint64 `json:"row"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	// Department is optional; later schema revisions of the source
	// data added it without making it required.
	Department string `json:"department,omitempty"`

	// Generated fields, written once by the campaign engine and never
	// overwritten while non-empty except by a full re-run.
	Profile string            `json:"profile,omitempty"`
	Angles  [SlotCount]string `json:"angles,omitempty"`
	Slots   [SlotCount]Slot   `json:"slots,omitempty"`

	Status Status `json:"status"`
	// Info is a free-text annotation of the last significant event
	Info string `json:"info,omitempty"`
	// BounceStatus is the last delivery-failure signal from the
	// gateway; advisory only, never gates the state machine
	BounceStatus string `json:"bounce_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info strings written by the engine and executor. The manual-stop
// text is distinct from the automatic completion text so the two paths
// stay distinguishable in the row history.
const (
	InfoAllSent   = "all emails sent"
	InfoStoppedBy = "stopped by you"
)

// AllSent reports whether every slot's sent marker is set.
func (l *Lead) AllSent() bool {
	for i := range l.Slots {
		if !l.Slots[i].Sent {
			return false
		}
	}
	return true
}

// NextUnsent returns the index of the earliest slot whose sent marker
// is unset, or -1 if all slots are sent. Slots are stored in due-time
// order, so the first unset marker is the earliest.
func (l *Lead) NextUnsent() int {
	for i := range l.Slots {
		if !l.Slots[i].Sent {
			return i
		}
	}
	return -1
}

// NextDue returns the index of the earliest slot that is due at or
// before now and still unsent, or -1 if there is none.
func (l *Lead) NextDue(now time.Time) int {
	i := l.NextUnsent()
	if i < 0 {
		return -1
	}
	if l.Slots[i].DueAt.After(now) {
		return -1
	}
	return i
}
