package events

// Events are JSON encoded on JetStream subjects:
//
//	auth.account.{id}.created
//	auth.session.{id}.created
//	auth.session.{id}.invalidated
//	directory.employee.{id}.{created|updated|deleted}

// EventMetadata contains common event information
type EventMetadata struct {
	EventID   string `json:"event_id"`
	EntityID  string `json:"entity_id"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// AccountCreated is published when a new account registers.
type AccountCreated struct {
	Metadata  EventMetadata `json:"metadata"`
	AccountID int64         `json:"account_id"`
	Username  string        `json:"username"`
	FullName  string        `json:"full_name,omitempty"`
}

// SessionCreated is published on login.
type SessionCreated struct {
	Metadata  EventMetadata `json:"metadata"`
	AccountID int64         `json:"account_id"`
	ExpiresAt int64         `json:"expires_at"`
}

// SessionInvalidated is published on logout.
type SessionInvalidated struct {
	Metadata  EventMetadata `json:"metadata"`
	AccountID int64         `json:"account_id"`
}

type EmployeeAction string

const (
	EmployeeCreated EmployeeAction = "created"
	EmployeeUpdated EmployeeAction = "updated"
	EmployeeDeleted EmployeeAction = "deleted"
)

// EmployeeChanged is published after a directory write commits.
type EmployeeChanged struct {
	Metadata   EventMetadata  `json:"metadata"`
	Action     EmployeeAction `json:"action"`
	EmployeeID int64          `json:"employee_id"`
	OwnerID    int64          `json:"owner_id"`
	FullName   string         `json:"full_name,omitempty"`
}
