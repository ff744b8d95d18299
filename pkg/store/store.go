package store

import (
	"context"
	"errors"

	"learnhub/pkg/domain"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (one enrollment and one review per user and course).
var ErrDuplicate = errors.New("duplicate row")

// Store defines persistence operations for the marketplace.
// Lookups return found=false instead of an error when no row matches.
type Store interface {
	// courses
	SaveCourse(ctx context.Context, c domain.Course) error
	GetCourse(ctx context.Context, id string) (domain.Course, bool, error)
	ListCourses(ctx context.Context) ([]domain.Course, error)

	// enrollments
	GetEnrollment(ctx context.Context, userID, courseID string) (domain.Enrollment, bool, error)
	InsertEnrollment(ctx context.Context, e domain.Enrollment) error
	PromoteEnrollment(ctx context.Context, userID, courseID string, from domain.EnrollmentState, e domain.Enrollment) (bool, error)
	ListEnrollmentsByUser(ctx context.Context, userID string) ([]domain.Enrollment, error)

	// chat
	AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error
	ListChatMessages(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error)
	CountChatMessages(ctx context.Context, userID string, assistant bool) (int, error)

	// reviews
	InsertReview(ctx context.Context, r domain.CourseReview) error
	ListReviewsByCourse(ctx context.Context, courseID string, limit int) ([]domain.CourseReview, error)
	CountReviewsByUser(ctx context.Context, userID string) (int, error)
}
