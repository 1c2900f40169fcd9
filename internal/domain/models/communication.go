// internal/domain/models/communication.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a direct message between two profiles, optionally about a student.
type Message struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderUID    string              `bson:"sender_uid" json:"sender_uid"`
	RecipientUID string              `bson:"recipient_uid" json:"recipient_uid"`
	StudentID    *primitive.ObjectID `bson:"student_id,omitempty" json:"student_id,omitempty"`
	Subject      string              `bson:"subject" json:"subject"`
	Body         string              `bson:"body" json:"body"`
	Read         bool                `bson:"read" json:"read"`
	SentAt       time.Time           `bson:"sent_at" json:"sent_at"`
}

// Event is a class calendar entry (meeting, test, outing).
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClassID     primitive.ObjectID `bson:"class_id" json:"class_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	StartsAt    time.Time          `bson:"starts_at" json:"starts_at"`
	CreatedBy   string             `bson:"created_by" json:"created_by"`
}

// MaterialRequest asks the parents of a class to send materials.
type MaterialRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClassID     primitive.ObjectID `bson:"class_id" json:"class_id"`
	TeacherUID  string             `bson:"teacher_uid" json:"teacher_uid"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	DueDate     time.Time          `bson:"due_date" json:"due_date"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
