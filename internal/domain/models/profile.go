// internal/domain/models/profile.go
package models

import "time"

// Profile is the role-specific record for a signed-up user.
//
// NOTE:
//   - The _id is the UID issued by the identity provider, not an ObjectID.
//   - A user can be both a teacher and a parent; the flags are independent.
type Profile struct {
	UID       string    `bson:"_id" json:"uid"`
	Email     string    `bson:"email" json:"email"`
	FullName  string    `bson:"full_name" json:"full_name"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Address   string    `bson:"address,omitempty" json:"address,omitempty"`
	IsTeacher bool      `bson:"is_teacher" json:"is_teacher"`
	IsParent  bool      `bson:"is_parent" json:"is_parent"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
