package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
)

const fetchFailedMessage = "Failed to fetch users"

// Machine is the admin panel state for one request: the user list, the
// pending action and the current banner. Dispatch is its only mutator.
type Machine struct {
	svc      *Service
	token    string
	list     ListState
	action   ActionState
	banner   *shared.FlashMessage
	bannerAt time.Time
}

// List returns the list state.
func (m *Machine) List() ListState {
	return m.list
}

// Action returns the action state.
func (m *Machine) Action() ActionState {
	return m.action
}

// Pending returns the action awaiting confirmation, if any.
func (m *Machine) Pending() (PendingAction, bool) {
	if s, ok := m.action.(AwaitingConfirmation); ok {
		return s.Action, true
	}
	return PendingAction{}, false
}

// Banner returns the banner still visible at now.
func (m *Machine) Banner(now time.Time) *shared.FlashMessage {
	if m.banner == nil {
		return nil
	}
	if m.banner.DismissAfter > 0 && !now.Before(m.bannerAt.Add(m.banner.DismissAfter)) {
		return nil
	}
	b := *m.banner
	return &b
}

// Dispatch applies ev. The returned error is non-nil only when the backend
// rejected the token; every other failure becomes a banner.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case LoadPage:
		return m.load(ctx, e.Page, true)
	case Request:
		m.request(ctx, e)
		return nil
	case Confirm:
		return m.confirm(ctx)
	case Cancel:
		if _, ok := m.action.(AwaitingConfirmation); ok {
			m.action = NoPendingAction{}
		}
		return nil
	}
	return fmt.Errorf("admin: unknown event %T", ev)
}

// load fetches page. With clamp set, a page past the end is fetched again
// at the last page; otherwise the single response is kept and only the
// rendered pagination is clamped.
func (m *Machine) load(ctx context.Context, page int, clamp bool) error {
	perPage := m.svc.cfg.PageSize
	page = shared.ClampPage(page, 0)
	m.list = Loading{Page: page}

	resp, err := m.svc.api.ListUsers(ctx, m.token, page, perPage)
	if clamp && err == nil && resp.Pages > 0 && page > resp.Pages {
		page = shared.ClampPage(page, resp.Pages)
		m.list = Loading{Page: page}
		resp, err = m.svc.api.ListUsers(ctx, m.token, page, perPage)
	}
	if err != nil {
		m.list = Loaded{Pagination: shared.PaginationFromPages(1, 0, perPage, 0)}
		if errors.Is(err, backend.ErrUnauthorized) {
			return err
		}
		m.svc.logger.Warn("list users", slog.Int("page", page), slog.Any("error", err))
		m.setBanner(shared.FlashError, fetchFailedMessage, 0)
		return nil
	}

	if resp.PerPage > 0 {
		perPage = resp.PerPage
	}
	m.list = Loaded{
		Users:      resp.Users,
		Pagination: shared.PaginationFromPages(page, resp.Pages, perPage, resp.Total),
	}
	return nil
}

func (m *Machine) request(ctx context.Context, e Request) {
	if _, ok := m.action.(NoPendingAction); !ok {
		m.svc.observe(e.Kind, OutcomeIgnored)
		return
	}
	held, err := m.svc.guard.Held(ctx, InflightKey(e.Kind, e.TargetID))
	if err != nil {
		m.svc.logger.Warn("admin guard lookup", slog.Any("error", err))
	}
	if held {
		m.svc.observe(e.Kind, OutcomeIgnored)
		return
	}

	name := e.TargetName
	if name == "" {
		name = m.lookupName(e.TargetID)
	}
	page := e.Page
	if page < 1 {
		page = m.currentPage()
	}
	m.action = AwaitingConfirmation{Action: PendingAction{
		TargetID:   e.TargetID,
		TargetName: name,
		Kind:       e.Kind,
		Page:       page,
	}}
}

func (m *Machine) confirm(ctx context.Context) error {
	awaiting, ok := m.action.(AwaitingConfirmation)
	if !ok {
		return nil
	}
	action := awaiting.Action
	key := InflightKey(action.Kind, action.TargetID)

	acquired, err := m.svc.guard.Acquire(ctx, key, m.svc.cfg.Lease)
	if err != nil {
		// Fail open; the session still holds a single pending slot.
		m.svc.logger.Warn("admin guard acquire", slog.String("key", key), slog.Any("error", err))
		acquired = true
	}
	if !acquired {
		m.action = NoPendingAction{}
		m.svc.observe(action.Kind, OutcomeIgnored)
		return nil
	}

	m.action = Processing{Action: action}
	defer func() {
		// Release even when the request was cancelled.
		if err := m.svc.guard.Release(context.WithoutCancel(ctx), key, m.svc.cfg.Grace); err != nil {
			m.svc.logger.Warn("admin guard release", slog.String("key", key), slog.Any("error", err))
		}
		m.action = NoPendingAction{}
	}()

	if action.Kind == KindActivate {
		err = m.svc.api.ActivateUser(ctx, m.token, action.TargetID)
	} else {
		err = m.svc.api.DeactivateUser(ctx, m.token, action.TargetID)
	}
	if err != nil {
		m.svc.observe(action.Kind, OutcomeFailure)
		if errors.Is(err, backend.ErrUnauthorized) {
			return err
		}
		m.svc.logger.Warn("admin action failed",
			slog.String("kind", string(action.Kind)),
			slog.Int64("target_id", action.TargetID),
			slog.Any("error", err))
		m.setBanner(shared.FlashError, shared.UserSafeMessage(err, action.failureMessage()), 0)
		return nil
	}

	m.svc.observe(action.Kind, OutcomeSuccess)
	m.setBanner(shared.FlashSuccess, action.successMessage(), m.svc.cfg.DismissAfter)
	return m.load(ctx, action.Page, false)
}

func (m *Machine) setBanner(kind, message string, dismissAfter time.Duration) {
	m.banner = &shared.FlashMessage{Kind: kind, Message: message, DismissAfter: dismissAfter}
	m.bannerAt = m.svc.now()
}

func (m *Machine) lookupName(id int64) string {
	if loaded, ok := m.list.(Loaded); ok {
		for _, u := range loaded.Users {
			if u.ID == id {
				return u.FullName
			}
		}
	}
	return ""
}

func (m *Machine) currentPage() int {
	switch s := m.list.(type) {
	case Loaded:
		return s.Pagination.Page
	case Loading:
		return s.Page
	}
	return 1
}
