// Package api serves the invitation endpoints. Every route runs behind a
// pipeline built from the shared security components; handlers only see
// requests that passed it.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/httpmw"
	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/repo"
	"github.com/keithlinneman/invitegate/internal/upload"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Store is the persistence the handlers need. *repo.DB implements it.
type Store interface {
	CreateUser(ctx context.Context, u repo.User) (repo.User, error)
	UserByEmail(ctx context.Context, email string) (repo.User, error)
	UserByID(ctx context.Context, id string) (repo.User, error)

	CreateInvitation(ctx context.Context, inv repo.Invitation) (repo.Invitation, error)
	InvitationByID(ctx context.Context, id string) (repo.Invitation, error)
	InvitationBySlug(ctx context.Context, slug string) (repo.Invitation, error)
	UpdateInvitation(ctx context.Context, id, title string, fields map[string]any) (repo.Invitation, error)

	CreateRSVP(ctx context.Context, r repo.RSVP) (repo.RSVP, error)
	CreateWish(ctx context.Context, w repo.Wish) (repo.Wish, error)
	ListWishes(ctx context.Context, invitationID string, limit, offset int) ([]repo.Wish, error)

	AddPhotos(ctx context.Context, invitationID string, ps []repo.Photo, allow func(existing int) error) ([]repo.Photo, error)
	CountPhotos(ctx context.Context, invitationID string) (int, error)
}

// TokenIssuer signs bearer tokens for logged in users.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

type Options struct {
	Store     Store
	Tokens    TokenIssuer
	Hasher    *auth.Hasher
	Pipelines pipeline.Deps
	Uploads   upload.Store
	// UploadPolicy defaults to upload.ImagePolicy.
	UploadPolicy *upload.Policy
	Clock        clock.Clock
}

// API holds the handlers and the pipeline in front of each of them.
type API struct {
	store   Store
	tokens  TokenIssuer
	hasher  *auth.Hasher
	uploads upload.Store
	clock   clock.Clock
	auth    auth.Authenticator
	csrf    *csrf.Guard

	// compared against on unknown emails so lookups and failures cost the same
	dummyHash string

	csrfToken, register, login, logout, me      *pipeline.Runner
	createInv, updateInv, getInv                *pipeline.Runner
	rsvp, createWish, listWishes, galleryUpload *pipeline.Runner
}

func New(opts Options) (*API, error) {
	if opts.Store == nil || opts.Tokens == nil || opts.Hasher == nil || opts.Uploads == nil {
		return nil, xerrors.New("api: store, tokens, hasher and uploads are required")
	}
	if opts.Pipelines.CSRF == nil || opts.Pipelines.Limiters == nil || opts.Pipelines.Auth == nil {
		return nil, xerrors.New("api: pipelines need limiters, an authenticator and a csrf guard")
	}
	policy := upload.ImagePolicy()
	if opts.UploadPolicy != nil {
		policy = *opts.UploadPolicy
	}
	dummy, err := opts.Hasher.Hash("invitegate-unknown-user")
	if err != nil {
		return nil, xerrors.Wrap(err, "hash placeholder password")
	}

	a := &API{
		store:     opts.Store,
		tokens:    opts.Tokens,
		hasher:    opts.Hasher,
		uploads:   opts.Uploads,
		clock:     clock.OrReal(opts.Clock),
		auth:      opts.Pipelines.Auth,
		csrf:      opts.Pipelines.CSRF,
		dummyHash: dummy,
	}

	d := opts.Pipelines
	build := []struct {
		dst **pipeline.Runner
		cfg pipeline.Config
	}{
		{&a.csrfToken, pipeline.Public()},
		{&a.register, pipeline.Register()},
		{&a.login, pipeline.Login()},
		{&a.logout, pipeline.Logout()},
		{&a.me, pipeline.Session()},
		{&a.createInv, pipeline.InvitationWrite()},
		{&a.updateInv, pipeline.InvitationUpdate()},
		{&a.getInv, invitationRead()},
		{&a.rsvp, pipeline.RSVP()},
		{&a.createWish, pipeline.GuestWish()},
		{&a.listWishes, pipeline.WishList()},
		{&a.galleryUpload, pipeline.GalleryUpload(policy)},
	}
	for _, b := range build {
		r, err := d.Build(b.cfg)
		if err != nil {
			return nil, err
		}
		*b.dst = r
	}
	return a, nil
}

// invitationRead is the public preset with the slug checked.
func invitationRead() pipeline.Config {
	c := pipeline.WishList()
	c.Name = "invitationRead"
	c.Schemas.Query = nil
	return c
}

// Routes registers the API on r. Bearer tokens are resolved up front so
// rate limit buckets are per user for signed in clients.
func (a *API) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional(a.auth))

		r.With(httpmw.Scope("csrf")).Method(http.MethodGet, "/api/csrf-token", a.csrfToken.Handler(a.handleCSRFToken))

		r.Route("/api/auth", func(r chi.Router) {
			r.Use(httpmw.Scope("auth"))
			r.Method(http.MethodPost, "/register", a.register.Handler(a.handleRegister))
			r.Method(http.MethodPost, "/login", a.login.Handler(a.handleLogin))
			r.Method(http.MethodPost, "/logout", a.logout.Handler(a.handleLogout))
			r.Method(http.MethodGet, "/me", a.me.Handler(a.handleMe))
		})

		r.Route("/api/invitations", func(r chi.Router) {
			r.Use(httpmw.Scope("invitations"))
			r.Method(http.MethodPost, "/", a.createInv.Handler(a.handleCreateInvitation))
			r.Method(http.MethodPut, "/{id}", a.updateInv.Handler(a.handleUpdateInvitation))
			r.Method(http.MethodGet, "/{slug}", a.getInv.Handler(a.handleGetInvitation))
			r.Method(http.MethodPost, "/{slug}/rsvp", a.rsvp.Handler(a.handleRSVP))
			r.Method(http.MethodPost, "/{slug}/wishes", a.createWish.Handler(a.handleCreateWish))
			r.Method(http.MethodGet, "/{slug}/wishes", a.listWishes.Handler(a.handleListWishes))
			r.Method(http.MethodPost, "/{id}/gallery", a.galleryUpload.Handler(a.handleGalleryUpload))
		})
	})
}

// notFound maps repo.ErrNotFound to a 404 with msg and passes other
// errors through.
func notFound(err error, msg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apierr.NotFound(msg)
	}
	return err
}

func ok(w http.ResponseWriter, status int, data any) {
	apierr.WriteJSON(w, status, map[string]any{"success": true, "data": data})
}
