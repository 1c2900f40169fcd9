// Package identity is the identity provider: email/password accounts
// hashed with bcrypt, plus federated credentials linked to them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	accountstore "github.com/oriundostartup/libreta/internal/app/store/accounts"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HashVersionBcrypt tags hashes produced by this package.
const HashVersionBcrypt = "bcrypt"

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

var (
	// ErrEmailTaken is returned when another account uses the email.
	ErrEmailTaken = errors.New("identity: email already in use")
	// ErrWeakPassword is returned when the password fails the policy.
	ErrWeakPassword = errors.New("identity: password too weak")
	// ErrInvalidEmail is returned for addresses that do not parse.
	ErrInvalidEmail = errors.New("identity: invalid email")
	// ErrInvalidCredentials is returned for any failed sign-in.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrCredentialInUse is returned when a federated credential belongs to another account.
	ErrCredentialInUse = errors.New("identity: credential linked to another account")
)

// Accounts is the storage the provider needs. *accountstore.Store satisfies it.
type Accounts interface {
	Create(ctx context.Context, email, passwordHash, hashVersion string) (models.AuthAccount, error)
	GetByEmail(ctx context.Context, email string) (*models.AuthAccount, error)
	Delete(ctx context.Context, uid string) error
	Link(ctx context.Context, link models.IdentityLink) error
	LinkFor(ctx context.Context, provider, subject string) (*models.IdentityLink, error)
}

// Config configures a Provider.
type Config struct {
	BcryptCost int // 0 uses bcrypt.DefaultCost
}

// Provider creates, deletes and authenticates identities.
type Provider struct {
	accounts  Accounts
	verifiers federated.Registry
	cost      int
	log       *zap.Logger
}

// New creates a Provider. verifiers may be nil when no federated
// provider is configured.
func New(accounts Accounts, verifiers federated.Registry, logger *zap.Logger, cfg Config) *Provider {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if verifiers == nil {
		verifiers = federated.Registry{}
	}
	return &Provider{
		accounts:  accounts,
		verifiers: verifiers,
		cost:      cost,
		log:       logger,
	}
}

// CheckPassword applies the password policy.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrWeakPassword
	}
	if strings.TrimSpace(password) == "" {
		return ErrWeakPassword
	}
	return nil
}

func checkEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// CreateAccount registers email/password and returns the new UID.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = normalize.Email(email)
	if err := checkEmail(email); err != nil {
		return "", err
	}
	if err := CheckPassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrWeakPassword
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	acct, err := p.accounts.Create(ctx, email, string(hash), HashVersionBcrypt)
	if err != nil {
		if errors.Is(err, accountstore.ErrDuplicateEmail) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	p.log.Info("identity created", zap.String("uid", acct.UID))
	return acct.UID, nil
}

// DeleteAccount removes the identity and its federated links.
func (p *Provider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.accounts.Delete(ctx, uid); err != nil {
		return err
	}
	p.log.Info("identity deleted", zap.String("uid", uid))
	return nil
}

// SignIn checks email/password and returns the UID. Unknown email and
// wrong password are indistinguishable to the caller.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, error) {
	acct, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountstore.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if acct.HashVersion != HashVersionBcrypt {
		p.log.Warn("unsupported hash version", zap.String("uid", acct.UID), zap.String("hash_version", acct.HashVersion))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return acct.UID, nil
}

// LinkCredential verifies cred and attaches it to uid.
func (p *Provider) LinkCredential(ctx context.Context, uid string, cred federated.Credential) error {
	claims, err := p.verifiers.Verify(ctx, cred)
	if err != nil {
		return err
	}
	err = p.accounts.Link(ctx, models.IdentityLink{
		Provider: claims.Provider,
		Subject:  claims.Subject,
		UID:      uid,
		Email:    claims.Email,
	})
	if errors.Is(err, accountstore.ErrLinkTaken) {
		return ErrCredentialInUse
	}
	return err
}

// SignInWithCredential returns the UID a verified federated credential is
// linked to.
func (p *Provider) SignInWithCredential(ctx context.Context, cred federated.Credential) (string, error) {
	claims, err := p.verifiers.Verify(ctx, cred)
	if err != nil {
		if errors.Is(err, federated.ErrInvalidCredential) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	link, err := p.accounts.LinkFor(ctx, claims.Provider, claims.Subject)
	if err != nil {
		if errors.Is(err, accountstore.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	return link.UID, nil
}
