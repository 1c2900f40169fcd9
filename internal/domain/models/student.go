// internal/domain/models/student.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Student is a dependent owned by a parent profile.
// Class enrollment lives in the class_members collection.
type Student struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerUID  string             `bson:"owner_uid" json:"owner_uid"`
	FullName  string             `bson:"full_name" json:"full_name"`
	RUT       string             `bson:"rut,omitempty" json:"rut,omitempty"` // national id
	BirthDate *time.Time         `bson:"birth_date,omitempty" json:"birth_date,omitempty"`
	Grade     string             `bson:"grade,omitempty" json:"grade,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
