package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"learnhub/internal/util"
	"learnhub/pkg/domain"
	"learnhub/pkg/events"
	"learnhub/pkg/store"
)

const defaultReviewListLimit = 50

// ReviewInput is the review form.
type ReviewInput struct {
	Rating       int    `json:"rating" validate:"min=1,max=5"`
	Comment      string `json:"comment" validate:"mincomment"`
	ReviewerName string `json:"reviewerName" validate:"min=3,max=100"`
}

func (a *App) newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mincomment", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= a.minCommentLength
	})
	return v
}

func (a *App) reviewMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Rating":
		return "rating must be between 1 and 5"
	case "Comment":
		return fmt.Sprintf("comment must be at least %d characters", a.minCommentLength)
	case "ReviewerName":
		return "reviewer name must be at least 3 characters"
	}
	return fe.Error()
}

// SubmitReview stores the user's single review of a course.
func (a *App) SubmitReview(ctx context.Context, user domain.User, courseID string, in ReviewInput) (domain.CourseReview, error) {
	if user.Anonymous() {
		reviewSubmissions.WithLabelValues("unauthenticated").Inc()
		return domain.CourseReview{}, ErrUnauthenticated
	}
	in.Comment = strings.TrimSpace(in.Comment)
	in.ReviewerName = strings.TrimSpace(in.ReviewerName)
	if in.ReviewerName == "" {
		in.ReviewerName = strings.TrimSpace(user.DisplayName)
	}
	if err := a.validate.Struct(in); err != nil {
		reviewSubmissions.WithLabelValues("invalid").Inc()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.CourseReview{}, fmt.Errorf("%w: %s", ErrInvalidReview, a.reviewMessage(verrs[0]))
		}
		return domain.CourseReview{}, fmt.Errorf("%w: %v", ErrInvalidReview, err)
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return domain.CourseReview{}, err
	}

	review := domain.CourseReview{
		ID:           util.NewID(),
		CourseID:     course.ID,
		UserID:       user.ID,
		ReviewerName: in.ReviewerName,
		Rating:       in.Rating,
		Comment:      in.Comment,
		CreatedAt:    a.now(),
	}
	if err := a.store.InsertReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			reviewSubmissions.WithLabelValues("duplicate").Inc()
			return domain.CourseReview{}, ErrAlreadyReviewed
		}
		reviewSubmissions.WithLabelValues("error").Inc()
		return domain.CourseReview{}, fmt.Errorf("insert review: %w", err)
	}
	reviewSubmissions.WithLabelValues("accepted").Inc()
	a.publish(ctx, events.TypeReviewSubmitted, user.ID, course.ID, map[string]any{
		"reviewId": review.ID,
		"rating":   review.Rating,
	})
	return review, nil
}

// ListReviews returns a course's reviews, newest first.
func (a *App) ListReviews(ctx context.Context, courseID string, limit int) ([]domain.CourseReview, error) {
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultReviewListLimit
	}
	reviews, err := a.store.ListReviewsByCourse(ctx, course.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
