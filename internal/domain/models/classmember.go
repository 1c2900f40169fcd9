// internal/domain/models/classmember.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClassMember is the join between a student and a class.
// Exactly one document per (class_id, student_id). StudentName is
// denormalized so the teacher's roster does not need the parent's
// student documents.
type ClassMember struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClassID     primitive.ObjectID `bson:"class_id" json:"class_id"`
	StudentID   primitive.ObjectID `bson:"student_id" json:"student_id"`
	ParentUID   string             `bson:"parent_uid" json:"parent_uid"`
	StudentName string             `bson:"student_name" json:"student_name"`
	JoinedAt    time.Time          `bson:"joined_at" json:"joined_at"`
}
