package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"learnhub/pkg/domain"
)

func TestMemoryStoreEnrollmentUniqueness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := domain.Enrollment{ID: "e1", UserID: "u1", CourseID: "go-101", Status: domain.EnrollmentEnrolled, CreatedAt: time.Now()}
	if err := s.InsertEnrollment(ctx, e); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	e.ID = "e2"
	err := s.InsertEnrollment(ctx, e)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	got, ok, err := s.GetEnrollment(ctx, "u1", "go-101")
	if err != nil || !ok {
		t.Fatalf("get enrollment: ok=%v err=%v", ok, err)
	}
	if got.ID != "e1" {
		t.Fatalf("expected original row to survive, got %s", got.ID)
	}
}

func TestMemoryStoreConcurrentInsertSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertEnrollment(ctx, domain.Enrollment{ID: fmt.Sprintf("e%d", i), UserID: "u1", CourseID: "c1", Status: domain.EnrollmentEnrolled})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemoryStorePromoteEnrollment(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.InsertEnrollment(ctx, domain.Enrollment{ID: "e1", UserID: "u1", CourseID: "c1", Status: domain.EnrollmentDemoViewed}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	next := domain.Enrollment{Status: domain.EnrollmentEnrolled, PaymentMethod: "card", TransactionID: "sim_1"}
	ok, err := s.PromoteEnrollment(ctx, "u1", "c1", domain.EnrollmentDemoViewed, next)
	if err != nil || !ok {
		t.Fatalf("promote: ok=%v err=%v", ok, err)
	}
	ok, err = s.PromoteEnrollment(ctx, "u1", "c1", domain.EnrollmentDemoViewed, next)
	if err != nil || ok {
		t.Fatalf("second promote should not match: ok=%v err=%v", ok, err)
	}
	got, _, _ := s.GetEnrollment(ctx, "u1", "c1")
	if got.Status != domain.EnrollmentEnrolled || got.PaymentMethod != "card" || got.ID != "e1" {
		t.Fatalf("unexpected promoted row: %+v", got)
	}
}

func TestMemoryStoreReviewsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, user := range []string{"a", "b", "c"} {
		r := domain.CourseReview{ID: user, CourseID: "c1", UserID: user, Rating: 5, Comment: "great course!", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.InsertReview(ctx, r); err != nil {
			t.Fatalf("insert review: %v", err)
		}
	}
	if err := s.InsertReview(ctx, domain.CourseReview{ID: "dup", CourseID: "c1", UserID: "a"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	list, err := s.ListReviewsByCourse(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].UserID != "c" || list[1].UserID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	n, _ := s.CountReviewsByUser(ctx, "a")
	if n != 1 {
		t.Fatalf("expected 1 review by a, got %d", n)
	}
}

func TestMemoryStoreChatHistoryLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.AppendChatMessage(ctx, domain.ChatMessage{ID: fmt.Sprint(i), UserID: "u1", Message: fmt.Sprint(i), IsAssistant: i%2 == 1})
	}
	msgs, err := s.ListChatMessages(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Message != "2" || msgs[2].Message != "4" {
		t.Fatalf("unexpected window: %+v", msgs)
	}
	sent, _ := s.CountChatMessages(ctx, "u1", false)
	if sent != 3 {
		t.Fatalf("expected 3 user messages, got %d", sent)
	}
}

func TestIsDuplicate(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{&pgconn.PgError{Code: "23503"}, false},
	}
	for _, tc := range cases {
		if got := isDuplicate(tc.err); got != tc.want {
			t.Fatalf("isDuplicate(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if !errors.Is(translate(gorm.ErrDuplicatedKey), ErrDuplicate) {
		t.Fatalf("translate should wrap ErrDuplicate")
	}
}
