package model

import (
	"encoding/json"
	"time"
)

// NotificationType tags what happened. The set is closed: tags the
// client does not recognize decode to TypeUnknown.
type NotificationType int

const (
	TypeUnknown NotificationType = iota
	TypeTaskAssigned
	TypeTaskDue
	TypeTaskStatusUpdate
	TypeNewComment
	TypeNewDocument
	TypeAddedToProject
	TypeAddedToDepartment
	TypeApprovalRequest
	TypeMention
	TypeMilestoneCreated
)

var typeNames = map[NotificationType]string{
	TypeTaskAssigned:      "task_assigned",
	TypeTaskDue:           "task_due",
	TypeTaskStatusUpdate:  "task_status_update",
	TypeNewComment:        "new_comment",
	TypeNewDocument:       "new_document",
	TypeAddedToProject:    "added_to_project",
	TypeAddedToDepartment: "added_to_department",
	TypeApprovalRequest:   "approval_request",
	TypeMention:           "mention",
	TypeMilestoneCreated:  "milestone_created",
}

// AllTypes lists every known notification type in declaration order.
func AllTypes() []NotificationType {
	return []NotificationType{
		TypeTaskAssigned, TypeTaskDue, TypeTaskStatusUpdate,
		TypeNewComment, TypeNewDocument, TypeAddedToProject,
		TypeAddedToDepartment, TypeApprovalRequest, TypeMention,
		TypeMilestoneCreated,
	}
}

// ParseNotificationType maps a wire tag to its type.
func ParseNotificationType(s string) NotificationType {
	for t, name := range typeNames {
		if name == s {
			return t
		}
	}
	return TypeUnknown
}

// String returns the wire tag, or "unknown".
func (t NotificationType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// EntityKind names the kind of entity a notification points at.
type EntityKind int

const (
	EntityNone EntityKind = iota
	EntityProject
	EntityTask
	EntityComment
	EntityDocument
)

// ParseEntityKind maps the wire onModel tag to a kind. Empty or
// unrecognized tags yield EntityNone.
func ParseEntityKind(s string) EntityKind {
	switch s {
	case "Project":
		return EntityProject
	case "Task":
		return EntityTask
	case "Comment":
		return EntityComment
	case "Document":
		return EntityDocument
	default:
		return EntityNone
	}
}

// String returns the wire onModel tag, or "" for EntityNone.
func (k EntityKind) String() string {
	switch k {
	case EntityProject:
		return "Project"
	case EntityTask:
		return "Task"
	case EntityComment:
		return "Comment"
	case EntityDocument:
		return "Document"
	default:
		return ""
	}
}

// Notification is a server-owned alert about activity relevant to the user.
type Notification struct {
	// ID is the server-assigned identifier. The client never makes one up.
	ID string

	// Type is the parsed notification tag.
	Type NotificationType

	// RawType keeps the wire tag so unknown types can still be shown.
	RawType string

	// Message is the human-readable notification text.
	Message string

	// Read is authoritative on the server.
	Read bool

	// CreatedAt is when the server generated the notification.
	CreatedAt time.Time

	// RelatedTo is the id of the related entity, if any.
	RelatedTo string

	// OnModel names the kind of RelatedTo.
	OnModel EntityKind
}

// notificationWire is the JSON shape served by the API. Mongo-style
// backends send "_id", others "id".
type notificationWire struct {
	ID        string    `json:"id,omitempty"`
	MongoID   string    `json:"_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	RelatedTo string    `json:"relatedTo,omitempty"`
	OnModel   string    `json:"onModel,omitempty"`
}

// UnmarshalJSON decodes the wire form.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.ID
	if id == "" {
		id = w.MongoID
	}
	*n = Notification{
		ID:        id,
		Type:      ParseNotificationType(w.Type),
		RawType:   w.Type,
		Message:   w.Message,
		Read:      w.Read,
		CreatedAt: w.CreatedAt,
		RelatedTo: w.RelatedTo,
		OnModel:   ParseEntityKind(w.OnModel),
	}
	return nil
}

// MarshalJSON encodes the wire form.
func (n Notification) MarshalJSON() ([]byte, error) {
	raw := n.RawType
	if raw == "" || n.Type != TypeUnknown {
		raw = n.Type.String()
	}
	return json.Marshal(notificationWire{
		ID:        n.ID,
		Type:      raw,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
		RelatedTo: n.RelatedTo,
		OnModel:   n.OnModel.String(),
	})
}

// NewNotification is the body of POST /api/notifications. Other
// workflows send it as a side effect; the sync engine never does.
type NewNotification struct {
	User      string `json:"user"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	RelatedTo string `json:"relatedTo,omitempty"`
	OnModel   string `json:"onModel,omitempty"`
}
