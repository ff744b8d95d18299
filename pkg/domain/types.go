package domain

import "time"

type EnrollmentState string

const (
	EnrollmentDemoViewed EnrollmentState = "demo_viewed"
	EnrollmentEnrolled   EnrollmentState = "enrolled"
)

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// User is the identity of the current session as asserted by the auth provider.
// An empty ID means anonymous.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Anonymous reports whether no authenticated session is attached.
func (u User) Anonymous() bool {
	return u.ID == ""
}

type Course struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Level       string    `json:"level" yaml:"level"`
	Price       float64   `json:"price" yaml:"price"`
	Currency    string    `json:"currency" yaml:"currency"`
	Instructor  string    `json:"instructor" yaml:"instructor"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	MaterialKey string    `json:"-" yaml:"materialKey"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
}

// Free reports whether enrolling skips payment collection.
func (c Course) Free() bool {
	return c.Price <= 0
}

type Enrollment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	CourseID      string          `json:"courseId"`
	Status        EnrollmentState `json:"status"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// EnrollmentStatus is the answer of an access check.
type EnrollmentStatus struct {
	Enrolled bool    `json:"enrolled"`
	Status   *string `json:"status"`
}

type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Message     string    `json:"message"`
	IsAssistant bool      `json:"isAssistant"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatTurn is one entry of a conversation transcript.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type CourseReview struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"courseId"`
	UserID       string    `json:"userId"`
	ReviewerName string    `json:"reviewerName"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Profile struct {
	User             User         `json:"user"`
	Enrollments      []Enrollment `json:"enrollments"`
	EnrolledCourses  int          `json:"enrolledCourses"`
	ReviewsWritten   int          `json:"reviewsWritten"`
	ChatMessagesSent int          `json:"chatMessagesSent"`
}
