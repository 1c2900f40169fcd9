// internal/domain/models/class.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Class is a course taught by one teacher. Parents join their students
// to a class with the class's JoinCode.
type Class struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Grade      string             `bson:"grade,omitempty" json:"grade,omitempty"`
	School     string             `bson:"school,omitempty" json:"school,omitempty"`
	JoinCode   string             `bson:"join_code" json:"join_code"` // upper-case, unique
	TeacherUID string             `bson:"teacher_uid" json:"teacher_uid"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
