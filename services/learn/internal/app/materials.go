package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub/pkg/domain"
	"learnhub/pkg/storage"
)

// MaterialLink is a time-limited download link for course material.
type MaterialLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Size      int64     `json:"size,omitempty"`
}

// MaterialLink presigns the course's downloadable material for an enrolled user.
func (a *App) MaterialLink(ctx context.Context, user domain.User, courseID string) (MaterialLink, error) {
	if user.Anonymous() {
		return MaterialLink{}, ErrUnauthenticated
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return MaterialLink{}, err
	}
	key := strings.TrimSpace(course.MaterialKey)
	if key == "" {
		return MaterialLink{}, ErrNoMaterial
	}
	status, err := a.CheckEnrollment(ctx, user, course.ID)
	if err != nil {
		return MaterialLink{}, err
	}
	if !status.Enrolled {
		return MaterialLink{}, ErrNotEnrolled
	}
	if a.materials == nil {
		return MaterialLink{}, ErrMaterialsUnavailable
	}
	info, err := a.materials.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return MaterialLink{}, ErrNoMaterial
		}
		return MaterialLink{}, fmt.Errorf("%w: %v", ErrMaterialsUnavailable, err)
	}
	url, err := a.materials.PresignGet(ctx, key, materialLinkTTL)
	if err != nil {
		return MaterialLink{}, fmt.Errorf("%w: %v", ErrMaterialsUnavailable, err)
	}
	return MaterialLink{URL: url, ExpiresAt: a.now().Add(materialLinkTTL), Size: info.Size}, nil
}
