// Package notify records user activity and sends inactivity check-in emails.
package notify

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/metrics"
	"github.com/ashureev/betterme/internal/store"
)

var (
	// ErrUnauthorized is returned for a wrong scheduler token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSchedulerNotConfigured is returned when no scheduler token is set.
	ErrSchedulerNotConfigured = errors.New("SCHEDULER_TOKEN not configured")
	// ErrMissingUserID is returned when an activity ping has no user id.
	ErrMissingUserID = errors.New("missing user_id")
)

const checkinSubject = "Quick check-in: your plan progress"

// Options tunes check-in timing.
type Options struct {
	AfterInactive  time.Duration
	Cooldown       time.Duration
	SchedulerToken string
}

// RunResult summarizes one check-in batch.
type RunResult struct {
	Emailed    int `json:"emailed"`
	Considered int `json:"considered"`
}

// Service owns activity bookkeeping and check-in batches.
type Service struct {
	repo    store.Repository
	mailer  Mailer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService wires a Service. A nil mailer makes every send fail with
// ErrMailerNotConfigured.
func NewService(repo store.Repository, mailer Mailer, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = disabledMailer{}
	}
	return &Service{
		repo:    repo,
		mailer:  mailer,
		opts:    opts,
		logger:  logger.With("component", "notify"),
		metrics: m,
		now:     time.Now,
	}
}

// RecordActivity marks the user active now. Optional fields that are empty
// keep their stored values; a ping without an email falls back to the
// address the user logged in with.
func (s *Service) RecordActivity(ctx context.Context, a domain.Activity) error {
	a.UserID = strings.TrimSpace(a.UserID)
	if a.UserID == "" {
		return ErrMissingUserID
	}
	if strings.TrimSpace(a.Email) != "" {
		email, err := domain.NormalizeEmail(a.Email)
		if err != nil {
			return err
		}
		a.Email = email
	} else {
		a.Email = s.loginEmail(ctx, a.UserID)
	}
	a.Focus = strings.TrimSpace(a.Focus)
	a.NeedSlug = strings.TrimSpace(a.NeedSlug)
	a.NeedLabel = strings.TrimSpace(a.NeedLabel)
	a.LastActiveAt = s.now().UTC()

	if err := s.repo.RecordActivity(ctx, &a); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (s *Service) loginEmail(ctx context.Context, userID string) string {
	u, err := s.repo.GetUser(ctx, userID)
	switch {
	case err == nil:
		return u.Email
	case errors.Is(err, store.ErrNotFound):
		return ""
	default:
		s.logger.Warn("Failed to look up login email", "user_id", userID, "error", err)
		return ""
	}
}

// Authorize checks the token sent by the external scheduler.
func (s *Service) Authorize(token string) error {
	if s.opts.SchedulerToken == "" {
		return ErrSchedulerNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.SchedulerToken)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// RunCheckins emails every inactive user outside the cooldown window. A failed
// send leaves the user's timestamp untouched so the next run retries.
func (s *Service) RunCheckins(ctx context.Context) (*RunResult, error) {
	activity, err := s.repo.ListActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	now := s.now().UTC()
	res := &RunResult{}
	for _, a := range activity {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Considered++
		if !a.DueForCheckin(now, s.opts.AfterInactive, s.opts.Cooldown) {
			continue
		}

		if err := s.mailer.Send(ctx, a.Email, checkinSubject, s.checkinBody(a)); err != nil {
			s.metrics.ObserveCheckin("error")
			s.logger.Warn("Check-in email failed", "user_id", a.UserID, "error", err)
			continue
		}
		s.metrics.ObserveCheckin("sent")
		res.Emailed++

		if err := s.repo.MarkCheckinSent(ctx, a.UserID, now); err != nil {
			s.logger.Error("Failed to record check-in email", "user_id", a.UserID, "error", err)
		}
	}

	s.logger.Info("Check-in run completed", "emailed", res.Emailed, "considered", res.Considered)
	return res, nil
}

func (s *Service) checkinBody(a *domain.Activity) string {
	return fmt.Sprintf("Hi!\n\n"+
		"It’s been about %g hours since you last opened Better Me.\n"+
		"Did you get a chance to work on your %s / %s plan?\n\n"+
		"Open Better Me to reply and continue.\n",
		s.opts.AfterInactive.Hours(), a.FocusOrDefault(), a.NeedLabelOrDefault())
}
