package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"learnhub/pkg/events"
)

func TestSubmitReview(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	r, err := env.app.SubmitReview(ctx, alice, "go-101", ReviewInput{Rating: 5, Comment: "  Clear and practical.  "})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.ReviewerName != "Alice Doe" || r.Comment != "Clear and practical." || r.UserID != alice.ID {
		t.Fatalf("unexpected review: %+v", r)
	}
	_, err = env.app.SubmitReview(ctx, alice, "go-101", ReviewInput{Rating: 1, Comment: "Changed my mind entirely."})
	if !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
	list, err := env.app.ListReviews(ctx, "go-101", 0)
	if err != nil || len(list) != 1 || list[0].Rating != 5 {
		t.Fatalf("expected the first review to stand: %+v %v", list, err)
	}
	if got := env.publisher.types(); len(got) != 1 || got[0] != events.TypeReviewSubmitted {
		t.Fatalf("expected one review event, got %v", got)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inputs := []struct {
		in   ReviewInput
		want string
	}{
		{ReviewInput{Rating: 0, Comment: "long enough comment"}, "rating"},
		{ReviewInput{Rating: 6, Comment: "long enough comment"}, "rating"},
		{ReviewInput{Rating: 4, Comment: "   short   "}, "at least 10"},
		{ReviewInput{Rating: 4, Comment: "long enough comment", ReviewerName: "Al"}, "reviewer name"},
	}
	for _, tc := range inputs {
		_, err := env.app.SubmitReview(ctx, alice, "go-101", tc.in)
		if !errors.Is(err, ErrInvalidReview) || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("input %+v: expected %q validation error, got %v", tc.in, tc.want, err)
		}
	}
	// Display name "Bo" is too short to stand in for a reviewer name.
	if _, err := env.app.SubmitReview(ctx, bob, "go-101", ReviewInput{Rating: 4, Comment: "long enough comment"}); !errors.Is(err, ErrInvalidReview) {
		t.Fatalf("expected ErrInvalidReview for short display name, got %v", err)
	}
	if n, _ := env.store.CountReviewsByUser(ctx, alice.ID); n != 0 {
		t.Fatalf("invalid reviews must not be stored")
	}
}

func TestSubmitReviewLooseMinimum(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ReviewMinCommentLength = 1 })
	if _, err := env.app.SubmitReview(context.Background(), alice, "go-101", ReviewInput{Rating: 3, Comment: "ok"}); err != nil {
		t.Fatalf("short comment should pass with minimum 1: %v", err)
	}
}

func TestSubmitReviewErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	in := ReviewInput{Rating: 4, Comment: "long enough comment"}
	if _, err := env.app.SubmitReview(ctx, anon, "go-101", in); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := env.app.SubmitReview(ctx, alice, "missing", in); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
	if _, err := env.app.ListReviews(ctx, "missing", 10); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}
