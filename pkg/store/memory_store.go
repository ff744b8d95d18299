package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"learnhub/pkg/domain"
)

// MemoryStore is an in-process Store used for local runs and tests.
// It enforces the same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu          sync.RWMutex
	courses     map[string]domain.Course
	enrollments map[string]domain.Enrollment
	messages    map[string][]domain.ChatMessage
	reviews     map[string]domain.CourseReview
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]domain.Course),
		enrollments: make(map[string]domain.Enrollment),
		messages:    make(map[string][]domain.ChatMessage),
		reviews:     make(map[string]domain.CourseReview),
	}
}

func pairKey(userID, courseID string) string {
	return userID + "\x00" + courseID
}

func (m *MemoryStore) SaveCourse(_ context.Context, c domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.courses[c.ID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	m.courses[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (domain.Course, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	return c, ok, nil
}

func (m *MemoryStore) ListCourses(_ context.Context) ([]domain.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Course, 0, len(m.courses))
	for _, c := range m.courses {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

func (m *MemoryStore) GetEnrollment(_ context.Context, userID, courseID string) (domain.Enrollment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[pairKey(userID, courseID)]
	return e, ok, nil
}

func (m *MemoryStore) InsertEnrollment(_ context.Context, e domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(e.UserID, e.CourseID)
	if _, ok := m.enrollments[key]; ok {
		return fmt.Errorf("%w: enrollment %s/%s", ErrDuplicate, e.UserID, e.CourseID)
	}
	m.enrollments[key] = e
	return nil
}

func (m *MemoryStore) PromoteEnrollment(_ context.Context, userID, courseID string, from domain.EnrollmentState, e domain.Enrollment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, courseID)
	existing, ok := m.enrollments[key]
	if !ok || existing.Status != from {
		return false, nil
	}
	existing.Status = e.Status
	existing.PaymentMethod = e.PaymentMethod
	existing.TransactionID = e.TransactionID
	m.enrollments[key] = existing
	return true, nil
}

func (m *MemoryStore) ListEnrollmentsByUser(_ context.Context, userID string) ([]domain.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Enrollment, 0)
	for _, e := range m.enrollments {
		if e.UserID == userID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) AppendChatMessage(_ context.Context, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.UserID] = append(m.messages[msg.UserID], msg)
	return nil
}

func (m *MemoryStore) ListChatMessages(_ context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[userID]
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) CountChatMessages(_ context.Context, userID string, assistant bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, msg := range m.messages[userID] {
		if msg.IsAssistant == assistant {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertReview(_ context.Context, r domain.CourseReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(r.UserID, r.CourseID)
	if _, ok := m.reviews[key]; ok {
		return fmt.Errorf("%w: review %s/%s", ErrDuplicate, r.UserID, r.CourseID)
	}
	m.reviews[key] = r
	return nil
}

func (m *MemoryStore) ListReviewsByCourse(_ context.Context, courseID string, limit int) ([]domain.CourseReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.CourseReview, 0)
	for _, r := range m.reviews {
		if r.CourseID == courseID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) CountReviewsByUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.reviews {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
)
