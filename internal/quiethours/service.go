package quiethours

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
)

// Preference is the API view of a stored window.
type Preference struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Decision tells a notifier whether to deliver now.
type Decision struct {
	Deliver  bool        `json:"deliver"`
	Quiet    bool        `json:"quiet"`
	Window   *Preference `json:"window,omitempty"`
	ResumeAt *time.Time  `json:"resumeAt,omitempty"`
}

type Service interface {
	SetPreference(ctx context.Context, userID, start, end string) (Preference, error)
	Decide(ctx context.Context, userID string, at time.Time) (Decision, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) SetPreference(ctx context.Context, userID, start, end string) (Preference, error) {
	w, err := ParseWindow(start, end)
	if err != nil {
		return Preference{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quiet hours window")
	}
	if err := s.repo.Upsert(ctx, userID, w, s.now().UTC()); err != nil {
		return Preference{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store quiet hours")
	}
	return Preference{Start: w.Start(), End: w.End()}, nil
}

// Decide delivers unless the user has a window covering at.
func (s *service) Decide(ctx context.Context, userID string, at time.Time) (Decision, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quiet hours")
	}
	if w == nil {
		return Decision{Deliver: true}, nil
	}
	pref := &Preference{Start: w.Start(), End: w.End()}
	if !IsQuietNow(at, *w) {
		return Decision{Deliver: true, Window: pref}, nil
	}
	resume := NextEnd(at, *w)
	return Decision{Deliver: false, Quiet: true, Window: pref, ResumeAt: &resume}, nil
}
