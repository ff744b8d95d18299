package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
	"learnhub/pkg/domain"
)

type catalogFile struct {
	Courses []domain.Course `yaml:"courses"`
}

// LoadCatalogFile reads the course catalog seed from a YAML file.
func LoadCatalogFile(path string) ([]domain.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Courses))
	for i, c := range file.Courses {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: course %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate course id %q", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(c.Title) == "" {
			return nil, fmt.Errorf("catalog: course %q has no title", id)
		}
		if c.Price < 0 {
			return nil, fmt.Errorf("catalog: course %q has a negative price", id)
		}
		desc, err := plainDescription(c.Description)
		if err != nil {
			return nil, fmt.Errorf("catalog: course %q description: %w", id, err)
		}
		file.Courses[i].ID = id
		file.Courses[i].Description = desc
	}
	return file.Courses, nil
}

// plainDescription flattens an HTML course description to text. Markup from
// authoring tools is dropped so clients can render the field verbatim.
func plainDescription(s string) (string, error) {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " "), nil
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

// SeedCatalog upserts reference course data.
func (a *App) SeedCatalog(ctx context.Context, courses []domain.Course) error {
	for _, c := range courses {
		if err := a.store.SaveCourse(ctx, c); err != nil {
			return fmt.Errorf("seed course %s: %w", c.ID, err)
		}
	}
	return nil
}

// ListCourses returns the catalog.
func (a *App) ListCourses(ctx context.Context) ([]domain.Course, error) {
	courses, err := a.store.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetCourse returns one course or ErrCourseNotFound.
func (a *App) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return domain.Course{}, ErrCourseNotFound
	}
	course, ok, err := a.store.GetCourse(ctx, courseID)
	if err != nil {
		return domain.Course{}, fmt.Errorf("load course: %w", err)
	}
	if !ok {
		return domain.Course{}, ErrCourseNotFound
	}
	return course, nil
}
