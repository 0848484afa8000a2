package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==================== Group Request Types ====================

// Contact is a phone number kept as text so leading zeros and plus signs survive
type Contact string

// ErrInvalidRequest is returned when a group request cannot be run
var ErrInvalidRequest = errors.New("invalid group request")

// GroupRequest is the group name plus the ordered contacts to add.
// It is built once before automation starts and not modified afterwards.
type GroupRequest struct {
	Name     string    `json:"name"`
	Contacts []Contact `json:"contacts"`
}

// NewGroupRequest copies contacts into a new validated request
func NewGroupRequest(name string, contacts []Contact) (GroupRequest, error) {
	req := GroupRequest{
		Name:     name,
		Contacts: append([]Contact(nil), contacts...),
	}
	if err := req.Validate(); err != nil {
		return GroupRequest{}, err
	}
	return req, nil
}

// Validate checks that the request has a name and at least one contact
func (r GroupRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: group name is empty", ErrInvalidRequest)
	}
	if len(r.Contacts) == 0 {
		return fmt.Errorf("%w: no contacts", ErrInvalidRequest)
	}
	return nil
}

// ==================== Selector Types ====================

// SelectorKind is the lookup language of a selector
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// Selector is a concrete element lookup expression
type Selector struct {
	Kind  SelectorKind `json:"kind" yaml:"kind"`
	Value string       `json:"value" yaml:"value"`
}

// CSS builds a CSS selector
func CSS(value string) Selector { return Selector{Kind: SelectorCSS, Value: value} }

// XPath builds an XPath selector
func XPath(value string) Selector { return Selector{Kind: SelectorXPath, Value: value} }

func (s Selector) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.Value)
}

// Role is the logical UI element a selector points at
type Role string

const (
	RoleMenu         Role = "menu"          // Main menu control
	RoleNewGroup     Role = "new_group"     // "New group" menu entry
	RoleSearchInput  Role = "search_input"  // Contact search box
	RoleSearchResult Role = "search_result" // First search result
	RoleAdvance      Role = "advance"       // Moves from contact selection to naming
	RoleGroupName    Role = "group_name"    // Group subject field
	RoleConfirm      Role = "confirm"       // Finalizes group creation
	RoleLoginMarker  Role = "login_marker"  // Optional, present once logged in
)

// RequiredRoles lists the roles every selector table must define
func RequiredRoles() []Role {
	return []Role{
		RoleMenu,
		RoleNewGroup,
		RoleSearchInput,
		RoleSearchResult,
		RoleAdvance,
		RoleGroupName,
		RoleConfirm,
	}
}

// SelectorTable maps logical roles to the selectors of one UI version/localization
type SelectorTable struct {
	Profile   string            `json:"profile" yaml:"profile"`
	Version   string            `json:"version" yaml:"version"`
	Selectors map[Role]Selector `json:"selectors" yaml:"selectors"`
}

// Lookup returns the selector for a role
func (t SelectorTable) Lookup(role Role) (Selector, bool) {
	sel, ok := t.Selectors[role]
	if !ok || sel.Value == "" {
		return Selector{}, false
	}
	return sel, true
}

// Clone returns a deep copy of the table
func (t SelectorTable) Clone() SelectorTable {
	out := SelectorTable{
		Profile:   t.Profile,
		Version:   t.Version,
		Selectors: make(map[Role]Selector, len(t.Selectors)),
	}
	for role, sel := range t.Selectors {
		out.Selectors[role] = sel
	}
	return out
}

// ==================== Automation State Types ====================

// GroupState is the furthest point the group creation flow reached
type GroupState string

const (
	StateNone                 GroupState = "none"
	StateMenuOpened           GroupState = "menu_opened"
	StateGroupCreationStarted GroupState = "group_creation_started"
	StateContactsAdded        GroupState = "contacts_added"
	StateAdvancedToNaming     GroupState = "advanced_to_naming"
	StateNameEntered          GroupState = "name_entered"
	StateConfirmed            GroupState = "confirmed"
)

// ContactStatus is the outcome of adding one contact
type ContactStatus string

const (
	ContactAdded   ContactStatus = "added"
	ContactSkipped ContactStatus = "skipped"
)

// ContactResult records what happened to one contact
type ContactResult struct {
	Position int           `json:"position" db:"position"`
	Contact  Contact       `json:"contact" db:"contact"`
	Status   ContactStatus `json:"status" db:"status"`
	Message  string        `json:"message,omitempty" db:"message"`
}

// ==================== Run Types ====================

// RunStatus represents the status of a group creation run
type RunStatus string

const (
	StatusPending RunStatus = "pending"
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
)

// Terminal reports whether no further transitions will happen
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// RunResult is the record of one group creation run
type RunResult struct {
	RunID         string          `json:"run_id" db:"id"`
	GroupName     string          `json:"group_name" db:"group_name"`
	ContactsFile  string          `json:"contacts_file,omitempty" db:"contacts_file"`
	ContactsTotal int             `json:"contacts_total" db:"contacts_total"`
	Status        RunStatus       `json:"status" db:"status"`
	State         GroupState      `json:"state" db:"state"`
	ErrorMessage  string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt     *time.Time      `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at" db:"completed_at"`
	Contacts      []ContactResult `json:"contacts,omitempty"`
}

// Added counts contacts that made it into the group
func (r RunResult) Added() int {
	return r.count(ContactAdded)
}

// Skipped counts contacts with no search result
func (r RunResult) Skipped() int {
	return r.count(ContactSkipped)
}

func (r RunResult) count(status ContactStatus) int {
	n := 0
	for _, c := range r.Contacts {
		if c.Status == status {
			n++
		}
	}
	return n
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
