// internal/app/store/accounts/accountstore.go
package accountstore

// Terminology: User Identifiers
//   - UID / uid: the string id the identity provider issues; profiles use it as _id
//   - Subject: the id a federated provider (Google) uses for the same person

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrDuplicateEmail is returned when an account already uses the email.
	ErrDuplicateEmail = errors.New("an account with this email already exists")
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrLinkTaken is returned when the federated subject is linked to another account.
	ErrLinkTaken = errors.New("federated identity already linked to another account")
)

type Store struct {
	c     *mongo.Collection
	links *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:     db.Collection("auth_accounts"),
		links: db.Collection("identity_links"),
	}
}

// Create inserts a new account and returns it with its freshly issued UID.
// The password must already be hashed.
func (s *Store) Create(ctx context.Context, email, passwordHash, hashVersion string) (models.AuthAccount, error) {
	a := models.AuthAccount{
		UID:          uuid.NewString(),
		Email:        normalize.Email(email),
		PasswordHash: passwordHash,
		HashVersion:  hashVersion,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.AuthAccount{}, ErrDuplicateEmail
		}
		return models.AuthAccount{}, err
	}
	return a, nil
}

// GetByUID loads an account by UID.
func (s *Store) GetByUID(ctx context.Context, uid string) (*models.AuthAccount, error) {
	var a models.AuthAccount
	if err := s.c.FindOne(ctx, bson.M{"_id": uid}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetByEmail looks up an account by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.AuthAccount, error) {
	var a models.AuthAccount
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Delete removes the account and every federated link pointing at it.
// Deleting a missing account is not an error.
func (s *Store) Delete(ctx context.Context, uid string) error {
	if _, err := s.links.DeleteMany(ctx, bson.M{"uid": uid}); err != nil {
		return err
	}
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": uid})
	return err
}

// Exists reports whether an account with the UID exists.
func (s *Store) Exists(ctx context.Context, uid string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": uid})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Link records that (provider, subject) signs in as uid.
// Re-linking the same pair to the same uid is a no-op.
func (s *Store) Link(ctx context.Context, link models.IdentityLink) error {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now().UTC()
	}
	link.Email = normalize.Email(link.Email)
	if _, err := s.links.InsertOne(ctx, link); err != nil {
		if !wafflemongo.IsDup(err) {
			return err
		}
		existing, ferr := s.LinkFor(ctx, link.Provider, link.Subject)
		if ferr != nil {
			return ferr
		}
		if existing.UID != link.UID {
			return ErrLinkTaken
		}
	}
	return nil
}

// LinkFor returns the link for (provider, subject).
func (s *Store) LinkFor(ctx context.Context, provider, subject string) (*models.IdentityLink, error) {
	var l models.IdentityLink
	err := s.links.FindOne(ctx, bson.M{"provider": provider, "subject": subject}).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}
