// Package confirm builds the yes/no dialogs shown before destructive actions.
package confirm

import (
	"fmt"
	"strings"
)

// Tone selects the confirm button style.
type Tone string

const (
	ToneDanger  Tone = "danger"
	ToneSuccess Tone = "success"
)

const (
	// ConfirmPath receives the confirm form of the pending admin action.
	ConfirmPath = "/admin/actions/confirm"
	// CancelPath receives the cancel form of the pending admin action.
	CancelPath = "/admin/actions/cancel"

	fallbackName = "this user"
)

// Dialog is the view model rendered by partials/confirm.
type Dialog struct {
	Title         string
	Message       string
	ConfirmText   string
	CancelText    string
	Tone          Tone
	ConfirmAction string
	CancelAction  string
}

// ForActivate builds the dialog shown before activating name's account.
func ForActivate(name string) Dialog {
	return Dialog{
		Title:         "Activate User",
		Message:       fmt.Sprintf("Are you sure you want to activate %s's account? This will allow them to access the system.", displayName(name)),
		ConfirmText:   "Activate",
		CancelText:    "Cancel",
		Tone:          ToneSuccess,
		ConfirmAction: ConfirmPath,
		CancelAction:  CancelPath,
	}
}

// ForDeactivate builds the dialog shown before deactivating name's account.
func ForDeactivate(name string) Dialog {
	return Dialog{
		Title:         "Deactivate User",
		Message:       fmt.Sprintf("Are you sure you want to deactivate %s's account? This will prevent them from accessing the system.", displayName(name)),
		ConfirmText:   "Deactivate",
		CancelText:    "Cancel",
		Tone:          ToneDanger,
		ConfirmAction: ConfirmPath,
		CancelAction:  CancelPath,
	}
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return fallbackName
	}
	return name
}
