package model

import "github.com/google/uuid"

// Routing keys of the complaint events on the broker.
const (
	EventComplaintCreated       = "complaint.created"
	EventComplaintStatusChanged = "complaint.status.changed"
	EventComplaintRouted        = "complaint.routed"
	EventComplaintPublicNote    = "complaint.note.public"
)

// EventRoutingKeys lists every key the notification queue is bound to.
var EventRoutingKeys = []string{
	EventComplaintCreated,
	EventComplaintStatusChanged,
	EventComplaintRouted,
	EventComplaintPublicNote,
}

// ComplaintEvent is the payload of every complaint event. Fields not
// relevant to an event are left empty.
type ComplaintEvent struct {
	ComplaintID    uuid.UUID        `json:"complaint_id"`
	ConstituencyID uuid.UUID        `json:"constituency_id"`
	CitizenID      *uuid.UUID       `json:"citizen_id,omitempty"`
	Title          string           `json:"title"`
	Category       string           `json:"category,omitempty"`
	Priority       Priority         `json:"priority,omitempty"`
	OldStatus      *ComplaintStatus `json:"old_status,omitempty"`
	NewStatus      ComplaintStatus  `json:"new_status,omitempty"`
	AssignmentType AssignmentType   `json:"assignment_type,omitempty"`
	DeptID         *uuid.UUID       `json:"dept_id,omitempty"`
	AssignedTo     *uuid.UUID       `json:"assigned_to,omitempty"`
	Note           string           `json:"note,omitempty"`
	ActorID        uuid.UUID        `json:"actor_id"`
	Timestamp      int64            `json:"timestamp"`
}
