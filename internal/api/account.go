package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/repo"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

type session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      auth.Identity `json:"user"`
}

func identityOf(u repo.User) auth.Identity {
	return auth.Identity{ID: u.ID, Email: u.Email, Role: u.Role, Tier: u.Tier}
}

// handleCSRFToken returns the token the csrf stage already put on the
// response, so clients that cannot read headers can fetch it.
func (a *API) handleCSRFToken(w http.ResponseWriter, x *pipeline.Exchange) error {
	ok(w, http.StatusOK, map[string]string{"csrfToken": w.Header().Get(csrf.HeaderName)})
	return nil
}

func (a *API) issue(u repo.User) (session, error) {
	id := identityOf(u)
	tok, exp, err := a.tokens.Issue(id)
	if err != nil {
		return session{}, xerrors.Wrap(err, "issue token")
	}
	return session{Token: tok, ExpiresAt: exp, User: id}, nil
}

func (a *API) handleRegister(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	hash, err := a.hasher.Hash(x.String("password"))
	if err != nil {
		return xerrors.Wrap(err, "hash password")
	}
	u, err := a.store.CreateUser(ctx, repo.User{
		Email:        x.String("email"),
		Name:         x.String("name"),
		PasswordHash: hash,
	})
	if errors.Is(err, repo.ErrConflict) {
		return apierr.Conflict("Email already registered")
	}
	if err != nil {
		return err
	}
	s, err := a.issue(u)
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info(ctx, "user registered", "user_id", u.ID)
	ok(w, http.StatusCreated, s)
	return nil
}

func (a *API) handleLogin(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	password := x.String("password")

	u, err := a.store.UserByEmail(ctx, x.String("email"))
	switch {
	case errors.Is(err, repo.ErrNotFound):
		_ = a.hasher.Compare(a.dummyHash, password)
		return invalidCredentials()
	case err != nil:
		return err
	}
	if err := a.hasher.Compare(u.PasswordHash, password); err != nil {
		log.FromContext(ctx).Info(ctx, "login failed", "user_id", u.ID)
		return invalidCredentials()
	}

	s, err := a.issue(u)
	if err != nil {
		return err
	}
	ok(w, http.StatusOK, s)
	return nil
}

func invalidCredentials() error {
	return &apierr.Error{
		Kind:    apierr.KindUnauthenticated,
		Status:  http.StatusUnauthorized,
		Message: "Invalid email or password",
	}
}

// handleLogout drops the CSRF token bound to the caller. Bearer tokens are
// stateless and simply expire.
func (a *API) handleLogout(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	if err := a.csrf.Invalidate(ctx, x.Session); err != nil {
		return err
	}
	a.csrf.ClearToken(w.Header())
	ok(w, http.StatusOK, map[string]string{"message": "Logged out"})
	return nil
}

// handleMe reads the user back from the database, so a tier change shows
// up here before the caller's token is refreshed.
func (a *API) handleMe(w http.ResponseWriter, x *pipeline.Exchange) error {
	u, err := a.store.UserByID(x.Request.Context(), x.Identity.ID)
	if err != nil {
		return notFound(err, "User not found")
	}
	ok(w, http.StatusOK, u)
	return nil
}
