package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"learnhub/pkg/domain"
)

// GetProfile assembles the dashboard for the signed-in user.
func (a *App) GetProfile(ctx context.Context, user domain.User) (domain.Profile, error) {
	if user.Anonymous() {
		return domain.Profile{}, ErrUnauthenticated
	}
	var (
		enrollments []domain.Enrollment
		reviews     int
		sent        int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		enrollments, err = a.store.ListEnrollmentsByUser(gctx, user.ID)
		if err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		reviews, err = a.store.CountReviewsByUser(gctx, user.ID)
		if err != nil {
			return fmt.Errorf("count reviews: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sent, err = a.store.CountChatMessages(gctx, user.ID, false)
		if err != nil {
			return fmt.Errorf("count chat messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Profile{}, err
	}

	enrolled := 0
	for _, e := range enrollments {
		if e.Status == domain.EnrollmentEnrolled {
			enrolled++
		}
	}
	return domain.Profile{
		User:             user,
		Enrollments:      enrollments,
		EnrolledCourses:  enrolled,
		ReviewsWritten:   reviews,
		ChatMessagesSent: sent,
	}, nil
}
