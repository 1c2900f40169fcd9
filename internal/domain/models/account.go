// internal/domain/models/account.go
package models

import "time"

// AuthAccount is an identity-provider account. Its _id is the UID that
// every other collection uses to refer to the user.
type AuthAccount struct {
	UID          string    `bson:"_id" json:"uid"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	HashVersion  string    `bson:"hash_version" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// IdentityLink maps a federated provider subject onto an account.
type IdentityLink struct {
	Provider string    `bson:"provider" json:"provider"` // e.g. "google"
	Subject  string    `bson:"subject" json:"subject"`   // provider-scoped user id
	UID      string    `bson:"uid" json:"uid"`
	Email    string    `bson:"email,omitempty" json:"email,omitempty"`
	LinkedAt time.Time `bson:"linked_at" json:"linked_at"`
}
