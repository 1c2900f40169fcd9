package accounts

import (
	"context"
	"errors"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentityProvider issues and removes remote identities.
// *identity.Provider satisfies it.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
	DeleteAccount(ctx context.Context, uid string) error
	SignIn(ctx context.Context, email, password string) (string, error)
	LinkCredential(ctx context.Context, uid string, cred federated.Credential) error
	SignInWithCredential(ctx context.Context, cred federated.Credential) (string, error)
}

var (
	// ErrClassNotFound is returned by Directory.ClassByJoinCode.
	ErrClassNotFound = errors.New("accounts: no class with that join code")
	// ErrAlreadyExists is returned by Directory writes when a document with
	// the same id is already stored.
	ErrAlreadyExists = errors.New("accounts: document already exists")
)

// Directory is the remote document store as the provisioning flow sees it.
// Every write touches a single document; deletes of missing documents
// succeed.
type Directory interface {
	ClassByJoinCode(ctx context.Context, code string) (*models.Class, error)

	CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error)
	DeleteProfile(ctx context.Context, uid string) error

	CreateStudent(ctx context.Context, st models.Student) (models.Student, error)
	DeleteStudent(ctx context.Context, id primitive.ObjectID) error

	CreateClass(ctx context.Context, c models.Class) (models.Class, error)
	DeleteClass(ctx context.Context, id primitive.ObjectID) error

	AddClassMember(ctx context.Context, m models.ClassMember) (models.ClassMember, error)
	RemoveClassMember(ctx context.Context, id primitive.ObjectID) error
}

// Mirror is the read side of the local mirror used after a sync.
// *mirror.Store satisfies it.
type Mirror interface {
	GetProfile(ctx context.Context, uid string) (*mirror.Profile, error)
	StudentByRemoteID(ctx context.Context, ownerUID, remoteID string) (*mirror.Student, error)
	ClassByRemoteID(ctx context.Context, ownerUID, remoteID string) (*mirror.Class, error)
	ClassMemberFor(ctx context.Context, ownerUID, classRemoteID, studentRemoteID string) (*mirror.ClassMember, error)
	Counts(ctx context.Context, ownerUID string) (map[string]int, error)
}

// Syncer mirrors an identity's remote data locally.
// *syncengine.Engine satisfies it.
type Syncer interface {
	SyncAll(ctx context.Context, uid string) error
}
