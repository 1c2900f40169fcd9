package accounts

import (
	"context"
	"errors"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/app/system/identity"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Session is a signed-in identity resolved to its mirrored profile.
// Degraded lists the categories that failed to sync; the profile itself is
// always fresh. Counts holds mirrored rows per table for the home screen.
type Session struct {
	UID      string          `json:"uid"`
	Profile  *mirror.Profile `json:"profile"`
	Counts   map[string]int  `json:"counts,omitempty"`
	Degraded []string        `json:"degraded,omitempty"`
}

// Resolver maps identities to local profiles.
type Resolver struct {
	idp    IdentityProvider
	sync   Syncer
	mirror Mirror
	log    *zap.Logger
}

func NewResolver(idp IdentityProvider, syncer Syncer, m Mirror, logger *zap.Logger) *Resolver {
	return &Resolver{idp: idp, sync: syncer, mirror: m, log: logger}
}

// ResolveCurrentUser always syncs uid before reading the mirror; nothing
// cached between sessions is trusted. A missing profile yields
// ProfileNotFound so the caller can route to registration.
func (r *Resolver) ResolveCurrentUser(ctx context.Context, uid string) (*Session, error) {
	var degraded []string
	if err := r.sync.SyncAll(ctx, uid); err != nil {
		pf, ok := syncengine.AsPartialFailure(err)
		if !ok || pf.Failed(syncengine.CategoryProfile) {
			return nil, syncError("resolve", err)
		}
		degraded = pf.Names()
		r.log.Warn("session degraded", zap.String("uid", uid), zap.Strings("categories", degraded))
	}

	rctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "read profile")
	defer cancel()
	prof, err := r.mirror.GetProfile(rctx, uid)
	if err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			return nil, accounterr.New(accounterr.KindProfileNotFound, "resolve", err)
		}
		return nil, accounterr.New(accounterr.KindPostSyncRead, "resolve", err)
	}
	counts, err := r.mirror.Counts(rctx, uid)
	if err != nil {
		r.log.Warn("mirror counts unavailable", zap.String("uid", uid), zap.Error(err))
	}
	return &Session{UID: uid, Profile: prof, Counts: counts, Degraded: degraded}, nil
}

// SignIn authenticates email/password and resolves the identity.
func (r *Resolver) SignIn(ctx context.Context, email, password string) (*Session, error) {
	uid, err := r.idp.SignIn(ctx, email, password)
	if err != nil {
		return nil, signInError(err)
	}
	return r.ResolveCurrentUser(ctx, uid)
}

// SignInWithCredential authenticates a linked federated credential and
// resolves the identity.
func (r *Resolver) SignInWithCredential(ctx context.Context, cred federated.Credential) (*Session, error) {
	uid, err := r.idp.SignInWithCredential(ctx, cred)
	if err != nil {
		return nil, signInError(err)
	}
	return r.ResolveCurrentUser(ctx, uid)
}

func signInError(err error) error {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, federated.ErrInvalidCredential):
		return accounterr.New(accounterr.KindInvalidCredentials, "sign_in", err)
	case errors.Is(err, federated.ErrUnsupportedProvider):
		return accounterr.New(accounterr.KindInvalidInput, "provider", err)
	default:
		return accounterr.New(accounterr.KindRemoteRead, "sign_in", err)
	}
}
