package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnhub/internal/util"
	"learnhub/pkg/domain"
	"learnhub/pkg/events"
	"learnhub/pkg/store"
)

// GrantResult describes the outcome of an enrollment grant.
type GrantResult struct {
	Enrollment      domain.Enrollment `json:"enrollment"`
	AlreadyEnrolled bool              `json:"alreadyEnrolled"`
}

// CheckEnrollment reports whether the user may access the course.
// Anonymous users and missing rows are "not enrolled", never an error.
func (a *App) CheckEnrollment(ctx context.Context, user domain.User, courseID string) (domain.EnrollmentStatus, error) {
	if user.Anonymous() {
		return domain.EnrollmentStatus{Enrolled: false}, nil
	}
	e, ok, err := a.store.GetEnrollment(ctx, user.ID, strings.TrimSpace(courseID))
	if err != nil {
		return domain.EnrollmentStatus{Enrolled: false}, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return domain.EnrollmentStatus{Enrolled: false}, nil
	}
	status := string(e.Status)
	return domain.EnrollmentStatus{Enrolled: e.Status == domain.EnrollmentEnrolled, Status: &status}, nil
}

// GrantEnrollment records a completed enrollment. A second grant for the
// same pair succeeds with AlreadyEnrolled set; a demo_viewed row is promoted.
func (a *App) GrantEnrollment(ctx context.Context, user domain.User, courseID, method, transactionID string) (GrantResult, error) {
	if user.Anonymous() {
		return GrantResult{}, ErrUnauthenticated
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return GrantResult{}, err
	}
	logger := util.LoggerFromContext(ctx)

	e := domain.Enrollment{
		ID:            util.NewID(),
		UserID:        user.ID,
		CourseID:      course.ID,
		Status:        domain.EnrollmentEnrolled,
		PaymentMethod: strings.TrimSpace(method),
		TransactionID: strings.TrimSpace(transactionID),
		CreatedAt:     a.now(),
	}
	err = a.store.InsertEnrollment(ctx, e)
	switch {
	case err == nil:
		enrollmentGrants.WithLabelValues("granted").Inc()
		logger.Info("enrollment granted", "course_id", course.ID, "user_id", user.ID, "method", e.PaymentMethod)
		a.publishGrant(ctx, e)
		return GrantResult{Enrollment: e}, nil
	case errors.Is(err, store.ErrDuplicate):
	default:
		enrollmentGrants.WithLabelValues("error").Inc()
		return GrantResult{}, fmt.Errorf("grant enrollment: %w", err)
	}

	promoted, err := a.store.PromoteEnrollment(ctx, user.ID, course.ID, domain.EnrollmentDemoViewed, e)
	if err != nil {
		enrollmentGrants.WithLabelValues("error").Inc()
		return GrantResult{}, fmt.Errorf("promote enrollment: %w", err)
	}
	existing, ok, err := a.store.GetEnrollment(ctx, user.ID, course.ID)
	if err != nil {
		enrollmentGrants.WithLabelValues("error").Inc()
		return GrantResult{}, fmt.Errorf("load enrollment: %w", err)
	}
	if !ok {
		existing = e
	}
	if promoted {
		enrollmentGrants.WithLabelValues("promoted").Inc()
		logger.Info("enrollment promoted from demo", "course_id", course.ID, "user_id", user.ID)
		a.publishGrant(ctx, existing)
		return GrantResult{Enrollment: existing}, nil
	}
	enrollmentGrants.WithLabelValues("already_enrolled").Inc()
	return GrantResult{Enrollment: existing, AlreadyEnrolled: true}, nil
}

// RecordDemoView notes that the user opened the course preview. A user who
// already has any row for the course is left untouched.
func (a *App) RecordDemoView(ctx context.Context, user domain.User, courseID string) error {
	if user.Anonymous() {
		return ErrUnauthenticated
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	err = a.store.InsertEnrollment(ctx, domain.Enrollment{
		ID:        util.NewID(),
		UserID:    user.ID,
		CourseID:  course.ID,
		Status:    domain.EnrollmentDemoViewed,
		CreatedAt: a.now(),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("record demo view: %w", err)
	}
	return nil
}

func (a *App) publishGrant(ctx context.Context, e domain.Enrollment) {
	a.publish(ctx, events.TypeEnrollmentGranted, e.UserID, e.CourseID, map[string]string{
		"enrollmentId":  e.ID,
		"paymentMethod": e.PaymentMethod,
		"transactionId": e.TransactionID,
	})
}
