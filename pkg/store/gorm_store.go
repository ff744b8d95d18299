package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"learnhub/pkg/domain"
)

const migrateLockID int64 = 51808417

const uniqueViolation = "23505"

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&CourseModel{}, &EnrollmentModel{}, &ChatMessageModel{}, &CourseReviewModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// isDuplicate reports whether err is a uniqueness violation, either translated
// by GORM or raised raw by the driver.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == uniqueViolation
	}
	return false
}

func translate(err error) error {
	if isDuplicate(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// SaveCourse upserts catalog data.
func (s *GormStore) SaveCourse(ctx context.Context, c domain.Course) error {
	model := courseToModel(c)
	model.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "level", "price", "currency", "instructor", "tags", "material_key", "updated_at"}),
	}).Create(&model).Error
}

// GetCourse retrieves a course by slug.
func (s *GormStore) GetCourse(ctx context.Context, id string) (domain.Course, bool, error) {
	var model CourseModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Course{}, false, nil
		}
		return domain.Course{}, false, err
	}
	return courseFromModel(model), true, nil
}

// ListCourses returns the catalog ordered by title.
func (s *GormStore) ListCourses(ctx context.Context) ([]domain.Course, error) {
	var models []CourseModel
	if err := s.db.WithContext(ctx).Order("title ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Course, 0, len(models))
	for _, m := range models {
		res = append(res, courseFromModel(m))
	}
	return res, nil
}

// GetEnrollment returns the enrollment row for (user, course).
func (s *GormStore) GetEnrollment(ctx context.Context, userID, courseID string) (domain.Enrollment, bool, error) {
	var model EnrollmentModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Enrollment{}, false, nil
		}
		return domain.Enrollment{}, false, err
	}
	return enrollmentFromModel(model), true, nil
}

// InsertEnrollment creates an enrollment row. A second row for the same
// (user, course) yields ErrDuplicate.
func (s *GormStore) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	model := enrollmentToModel(e)
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// PromoteEnrollment moves an existing row from one status to e.Status.
// It returns false when no row in the expected status exists.
func (s *GormStore) PromoteEnrollment(ctx context.Context, userID, courseID string, from domain.EnrollmentState, e domain.Enrollment) (bool, error) {
	updates := map[string]any{
		"status":         string(e.Status),
		"payment_method": optionalString(e.PaymentMethod),
		"transaction_id": optionalString(e.TransactionID),
	}
	res := s.db.WithContext(ctx).Model(&EnrollmentModel{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListEnrollmentsByUser returns a user's enrollments, newest first.
func (s *GormStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	var models []EnrollmentModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Enrollment, 0, len(models))
	for _, m := range models {
		res = append(res, enrollmentFromModel(m))
	}
	return res, nil
}

// AppendChatMessage records one side of a chat turn.
func (s *GormStore) AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	model := ChatMessageModel{
		ID:          msg.ID,
		UserID:      msg.UserID,
		Message:     msg.Message,
		IsAssistant: msg.IsAssistant,
		CreatedAt:   msg.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListChatMessages returns the latest messages of a user in chronological order.
func (s *GormStore) ListChatMessages(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	var models []ChatMessageModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		msgs = append(msgs, domain.ChatMessage{
			ID:          m.ID,
			UserID:      m.UserID,
			Message:     m.Message,
			IsAssistant: m.IsAssistant,
			CreatedAt:   m.CreatedAt,
		})
	}
	return msgs, nil
}

// CountChatMessages counts user-authored (assistant=false) or assistant messages.
func (s *GormStore) CountChatMessages(ctx context.Context, userID string, assistant bool) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ChatMessageModel{}).
		Where("user_id = ? AND is_assistant = ?", userID, assistant).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// InsertReview stores a review; a second review by the same user yields ErrDuplicate.
func (s *GormStore) InsertReview(ctx context.Context, r domain.CourseReview) error {
	model := CourseReviewModel{
		ID:           r.ID,
		CourseID:     r.CourseID,
		UserID:       r.UserID,
		ReviewerName: r.ReviewerName,
		Rating:       r.Rating,
		Comment:      r.Comment,
		CreatedAt:    r.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// ListReviewsByCourse returns reviews newest first.
func (s *GormStore) ListReviewsByCourse(ctx context.Context, courseID string, limit int) ([]domain.CourseReview, error) {
	query := s.db.WithContext(ctx).Where("course_id = ?", courseID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []CourseReviewModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CourseReview, 0, len(models))
	for _, m := range models {
		res = append(res, domain.CourseReview{
			ID:           m.ID,
			CourseID:     m.CourseID,
			UserID:       m.UserID,
			ReviewerName: m.ReviewerName,
			Rating:       m.Rating,
			Comment:      m.Comment,
			CreatedAt:    m.CreatedAt,
		})
	}
	return res, nil
}

// CountReviewsByUser returns the number of reviews a user wrote.
func (s *GormStore) CountReviewsByUser(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&CourseReviewModel{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func courseToModel(c domain.Course) CourseModel {
	tags, _ := json.Marshal(c.Tags)
	currency := strings.ToLower(strings.TrimSpace(c.Currency))
	if currency == "" {
		currency = "usd"
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return CourseModel{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Level:       c.Level,
		Price:       c.Price,
		Currency:    currency,
		Instructor:  c.Instructor,
		Tags:        tags,
		MaterialKey: c.MaterialKey,
		CreatedAt:   createdAt,
	}
}

func courseFromModel(m CourseModel) domain.Course {
	var tags []string
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &tags)
	}
	return domain.Course{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Level:       m.Level,
		Price:       m.Price,
		Currency:    m.Currency,
		Instructor:  m.Instructor,
		Tags:        tags,
		MaterialKey: m.MaterialKey,
		CreatedAt:   m.CreatedAt,
	}
}

func enrollmentToModel(e domain.Enrollment) EnrollmentModel {
	return EnrollmentModel{
		ID:            e.ID,
		UserID:        e.UserID,
		CourseID:      e.CourseID,
		Status:        string(e.Status),
		PaymentMethod: optionalString(e.PaymentMethod),
		TransactionID: optionalString(e.TransactionID),
		CreatedAt:     e.CreatedAt,
	}
}

func enrollmentFromModel(m EnrollmentModel) domain.Enrollment {
	e := domain.Enrollment{
		ID:        m.ID,
		UserID:    m.UserID,
		CourseID:  m.CourseID,
		Status:    domain.EnrollmentState(m.Status),
		CreatedAt: m.CreatedAt,
	}
	if m.PaymentMethod != nil {
		e.PaymentMethod = *m.PaymentMethod
	}
	if m.TransactionID != nil {
		e.TransactionID = *m.TransactionID
	}
	return e
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
