package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type CourseModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Level       string
	Price       float64 `gorm:"not null;default:0"`
	Currency    string  `gorm:"not null;default:'usd'"`
	Instructor  string
	Tags        datatypes.JSON `gorm:"type:jsonb"`
	MaterialKey string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type EnrollmentModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;uniqueIndex:ux_enrollment_user_course,priority:1"`
	CourseID      string `gorm:"not null;uniqueIndex:ux_enrollment_user_course,priority:2;index"`
	Status        string `gorm:"not null"`
	PaymentMethod *string
	TransactionID *string
	CreatedAt     time.Time `gorm:"not null"`
}

type ChatMessageModel struct {
	ID          string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;index"`
	Message     string    `gorm:"type:text;not null"`
	IsAssistant bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

type CourseReviewModel struct {
	ID           string    `gorm:"primaryKey"`
	CourseID     string    `gorm:"not null;uniqueIndex:ux_review_user_course,priority:2;index"`
	UserID       string    `gorm:"not null;uniqueIndex:ux_review_user_course,priority:1"`
	ReviewerName string    `gorm:"not null"`
	Rating       int       `gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (CourseModel) TableName() string       { return "courses" }
func (EnrollmentModel) TableName() string   { return "enrollments" }
func (ChatMessageModel) TableName() string  { return "chat_messages" }
func (CourseReviewModel) TableName() string { return "course_reviews" }
