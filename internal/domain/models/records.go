// internal/domain/models/records.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Annotation kinds.
const (
	AnnotationPositive    = "positive"
	AnnotationNegative    = "negative"
	AnnotationObservation = "observation"
)

// Annotation is a teacher's note in a student's record book.
type Annotation struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID  primitive.ObjectID `bson:"student_id" json:"student_id"`
	ClassID    primitive.ObjectID `bson:"class_id" json:"class_id"`
	TeacherUID string             `bson:"teacher_uid" json:"teacher_uid"`
	Kind       string             `bson:"kind" json:"kind"` // positive | negative | observation
	Text       string             `bson:"text" json:"text"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Attendance statuses.
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// Attendance is one student's attendance mark for one class day.
type Attendance struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID  primitive.ObjectID `bson:"student_id" json:"student_id"`
	ClassID    primitive.ObjectID `bson:"class_id" json:"class_id"`
	Date       time.Time          `bson:"date" json:"date"` // midnight UTC
	Status     string             `bson:"status" json:"status"`
	RecordedBy string             `bson:"recorded_by" json:"recorded_by"`
}

// Justification statuses.
const (
	JustificationPending  = "pending"
	JustificationAccepted = "accepted"
	JustificationRejected = "rejected"
)

// Justification is a parent's explanation for an absence.
type Justification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID primitive.ObjectID `bson:"student_id" json:"student_id"`
	ClassID   primitive.ObjectID `bson:"class_id" json:"class_id"`
	ParentUID string             `bson:"parent_uid" json:"parent_uid"`
	Date      time.Time          `bson:"date" json:"date"`
	Reason    string             `bson:"reason" json:"reason"`
	Status    string             `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
