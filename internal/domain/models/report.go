package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportStatus represents where a civic report is in its lifecycle
type ReportStatus string

const (
	ReportStatusPendingAddress ReportStatus = "PendingAddress"
	ReportStatusPending        ReportStatus = "Pending"
	ReportStatusAccepted       ReportStatus = "Accepted"
	ReportStatusRejected       ReportStatus = "Rejected"
	ReportStatusResolved       ReportStatus = "Resolved"
)

// ErrInvalidTransition is returned when a status change is not allowed by the transition table
var ErrInvalidTransition = errors.New("invalid report status transition")

// transitions lists, for each status, the statuses it may move to.
var transitions = map[ReportStatus][]ReportStatus{
	ReportStatusPendingAddress: {ReportStatusPending, ReportStatusAccepted, ReportStatusRejected},
	ReportStatusPending:        {ReportStatusAccepted, ReportStatusRejected},
	ReportStatusAccepted:       {ReportStatusRejected, ReportStatusResolved},
	ReportStatusRejected:       {ReportStatusAccepted},
	ReportStatusResolved:       {},
}

// String returns the string representation of ReportStatus
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses
func (s ReportStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// Transition validates moving from s to next. Moving to the same status is an
// idempotent no-op and reports changed=false.
func (s ReportStatus) Transition(next ReportStatus) (changed bool, err error) {
	if !next.IsValid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if s == next {
		return false, nil
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}

// ParseReportStatus parses a string into ReportStatus, case-insensitively
func ParseReportStatus(s string) (ReportStatus, error) {
	for status := range transitions {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown report status %q", s)
}

// ReportSource records how a report entered the system
type ReportSource string

const (
	ReportSourceApp  ReportSource = "App"
	ReportSourceChat ReportSource = "Chat"
)

// Priority is the triage priority of a report
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// String returns the string representation of Priority
func (p Priority) String() string {
	return string(p)
}

// ParsePriority maps an oracle severity onto a Priority. Unknown values are Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor":
		return PriorityLow
	case "medium", "moderate":
		return PriorityMedium
	case "high", "major", "severe":
		return PriorityHigh
	case "critical", "emergency":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// MediaKind is the type of attached media
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// PendingAddress is the sentinel address stored on chat reports until the citizen replies
const PendingAddress = "Pending..."

// Location of a reported issue
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Media attached to a report
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// AIVerdict is what the verification oracle said about the media
type AIVerdict struct {
	Verified         bool   `json:"verified"`
	Confidence       int    `json:"confidence"` // 0..100
	Category         string `json:"category,omitempty"`
	ReasonIfRejected string `json:"reason_if_rejected,omitempty"`
	// Unavailable is set when the oracle could not be reached and the report awaits manual review
	Unavailable bool `json:"unavailable,omitempty"`
}

// Report is a single citizen-submitted civic issue
type Report struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Status        ReportStatus `json:"status" db:"status"`
	Source        ReportSource `json:"source" db:"source"`
	Department    string       `json:"department" db:"department"`
	DepartmentKey string       `json:"department_key" db:"department_key"`
	Priority      Priority     `json:"priority" db:"priority"`
	Description   string       `json:"description,omitempty" db:"description"`

	SenderPhone string  `json:"sender_phone,omitempty" db:"sender_phone"`
	AccountID   *string `json:"account_id,omitempty" db:"account_id"`
	GroupID     *string `json:"group_id,omitempty" db:"group_id"`

	Location  Location  `json:"location"`
	Media     Media     `json:"media"`
	AIVerdict AIVerdict `json:"ai_verdict"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AwaitingAddress reports whether a follow-up text at now should be taken as
// this report's address.
func (r *Report) AwaitingAddress(now time.Time, window time.Duration) bool {
	return r.Status == ReportStatusPendingAddress && now.Sub(r.CreatedAt) < window
}

// InferredArea is the area name used to target broadcasts for this report:
// the last comma-separated part of the address, or the whole address.
func (r *Report) InferredArea() string {
	addr := strings.TrimSpace(r.Location.Address)
	if addr == "" || addr == PendingAddress {
		return ""
	}
	parts := strings.Split(addr, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return addr
}

// ShortID is the first block of the UUID, used in chat replies
func (r *Report) ShortID() string {
	return strings.SplitN(r.ID.String(), "-", 2)[0]
}

var departmentKeyReplacer = strings.NewReplacer(
	"/", "_", ".", "_", "#", "_", "$", "_", "[", "_", "]", "_",
	" ", "_", "\t", "_", "\n", "_",
)

// SanitizeDepartmentKey turns a department name into the key used by the
// department index. Path-unsafe characters become underscores.
func SanitizeDepartmentKey(department string) string {
	return departmentKeyReplacer.Replace(strings.TrimSpace(department))
}

// StatusChangeRequest is the body of PATCH /api/v1/reports/{id}/status
type StatusChangeRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusChange is the outcome of applying a status change to a report
type StatusChange struct {
	Report   *Report      `json:"report"`
	Previous ReportStatus `json:"previous"`
	Changed  bool         `json:"changed"`
	Reach    int          `json:"reach"`
}
