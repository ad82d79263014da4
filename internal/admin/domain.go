// Package admin implements the admin user list and the confirm-then-act
// flow for activating and deactivating accounts.
package admin

import (
	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/confirm"
	"github.com/userhub/userhub-web/internal/shared"
)

// ActionKind names an account status change.
type ActionKind string

const (
	KindActivate   ActionKind = "activate"
	KindDeactivate ActionKind = "deactivate"
)

// ParseKind validates a kind taken from a URL segment.
func ParseKind(raw string) (ActionKind, bool) {
	switch ActionKind(raw) {
	case KindActivate:
		return KindActivate, true
	case KindDeactivate:
		return KindDeactivate, true
	}
	return "", false
}

// PendingAction is a requested status change awaiting confirmation.
type PendingAction struct {
	TargetID   int64      `json:"target_id"`
	TargetName string     `json:"target_name"`
	Kind       ActionKind `json:"kind"`
	Page       int        `json:"page"`
}

// Dialog returns the confirmation dialog for the action.
func (p PendingAction) Dialog() confirm.Dialog {
	if p.Kind == KindActivate {
		return confirm.ForActivate(p.TargetName)
	}
	return confirm.ForDeactivate(p.TargetName)
}

func (p PendingAction) successMessage() string {
	if p.Kind == KindActivate {
		return "User activated successfully!"
	}
	return "User deactivated successfully!"
}

func (p PendingAction) failureMessage() string {
	if p.Kind == KindActivate {
		return "Failed to activate user"
	}
	return "Failed to deactivate user"
}

// ListState is one of Idle, Loading or Loaded.
type ListState interface {
	isListState()
}

// Idle is the list state before the first load.
type Idle struct{}

// Loading is the list state while a page is being fetched.
type Loading struct {
	Page int
}

// Loaded holds the users of one page. A failed fetch yields an empty Loaded.
type Loaded struct {
	Users      []backend.User
	Pagination shared.Pagination
}

func (Idle) isListState()    {}
func (Loading) isListState() {}
func (Loaded) isListState()  {}

// ActionState is one of NoPendingAction, AwaitingConfirmation or Processing.
type ActionState interface {
	isActionState()
}

// NoPendingAction means no dialog is open.
type NoPendingAction struct{}

// AwaitingConfirmation holds the action shown in the open dialog.
type AwaitingConfirmation struct {
	Action PendingAction
}

// Processing holds the action whose backend call is running.
type Processing struct {
	Action PendingAction
}

func (NoPendingAction) isActionState()      {}
func (AwaitingConfirmation) isActionState() {}
func (Processing) isActionState()           {}

// Event drives the Machine.
type Event interface {
	isEvent()
}

// LoadPage fetches one page of users.
type LoadPage struct {
	Page int
}

// Request opens the confirmation dialog for an action.
type Request struct {
	TargetID   int64
	Kind       ActionKind
	TargetName string
	Page       int
}

// Confirm runs the pending action.
type Confirm struct{}

// Cancel drops the pending action.
type Cancel struct{}

func (LoadPage) isEvent() {}
func (Request) isEvent()  {}
func (Confirm) isEvent()  {}
func (Cancel) isEvent()   {}
