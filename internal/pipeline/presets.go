package pipeline

import (
	"regexp"

	"github.com/keithlinneman/invitegate/internal/moderation"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/upload"
	"github.com/keithlinneman/invitegate/internal/validate"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,62}[a-z0-9])$`)
	idPattern   = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)
)

var guestName = validate.Rule{Type: validate.String, Required: true, Min: validate.Bound(2), Max: validate.Bound(100)}

func slugParam() validate.Schema {
	return validate.Schema{"slug": {Type: validate.String, Required: true, Pattern: slugPattern}}
}

func idParam() validate.Schema {
	return validate.Schema{"id": {Type: validate.String, Required: true, Pattern: idPattern}}
}

// Public is for unauthenticated reads: the general API limit plus CSRF so
// the page load hands the client a token.
func Public() Config {
	return Config{Name: "public", RateLimiter: ratelimit.API, CSRF: true}
}

// GuestWish secures guest book submissions on a published invitation.
func GuestWish() Config {
	return Config{
		Name:        "guestWish",
		RateLimiter: ratelimit.ContentCreation,
		CSRF:        true,
		Schemas: Schemas{
			Params: slugParam(),
			Body: validate.Schema{
				"guest_name": guestName,
				"message":    {Type: validate.String, Required: true, Min: validate.Bound(2), Max: validate.Bound(1000)},
			},
		},
		Moderate: map[string]moderation.Context{
			"guest_name": moderation.GuestName,
			"message":    moderation.GuestWish,
		},
	}
}

// RSVP secures attendance replies.
func RSVP() Config {
	return Config{
		Name:        "rsvp",
		RateLimiter: ratelimit.ContentCreation,
		CSRF:        true,
		Schemas: Schemas{
			Params: slugParam(),
			Body: validate.Schema{
				"guest_name": guestName,
				"attending":  {Type: validate.Boolean, Required: true},
				"guests":     {Type: validate.Number, Min: validate.Bound(1), Max: validate.Bound(20)},
				"message":    {Type: validate.String, Max: validate.Bound(500)},
			},
		},
		Moderate: map[string]moderation.Context{
			"guest_name": moderation.GuestName,
			"message":    moderation.RSVPMessage,
		},
	}
}

// Register creates accounts under the auth limiter.
func Register() Config {
	return Config{
		Name:        "register",
		RateLimiter: ratelimit.Auth,
		CSRF:        true,
		Schemas: Schemas{Body: validate.Schema{
			"email":    {Type: validate.Email, Required: true, Max: validate.Bound(254)},
			"password": {Type: validate.String, Required: true, Min: validate.Bound(8), Max: validate.Bound(128), Secret: true},
			"name":     guestName,
		}},
		Moderate: map[string]moderation.Context{"name": moderation.GuestName},
	}
}

// Login uses the progressive limiter so repeated failures widen the window.
func Login() Config {
	return Config{
		Name:        "auth",
		RateLimiter: ratelimit.Login,
		CSRF:        true,
		Schemas: Schemas{Body: validate.Schema{
			"email":    {Type: validate.Email, Required: true, Max: validate.Bound(254)},
			"password": {Type: validate.String, Required: true, Max: validate.Bound(128), Secret: true},
		}},
	}
}

// Logout requires a user and a token, and nothing else.
func Logout() Config {
	return Config{Name: "logout", RateLimiter: ratelimit.API, RequireAuth: true, CSRF: true}
}

// Session reads the signed in user. It is a GET, so the csrf stage only
// issues a token.
func Session() Config {
	return Config{Name: "session", RateLimiter: ratelimit.API, RequireAuth: true, CSRF: true}
}

// InvitationWrite secures invitation creation.
func InvitationWrite() Config {
	return Config{
		Name:        "invitationWrite",
		RateLimiter: ratelimit.ContentCreation,
		RequireAuth: true,
		CSRF:        true,
		Schemas: Schemas{Body: validate.Schema{
			"title":                {Type: validate.String, Required: true, Min: validate.Bound(2), Max: validate.Bound(200), RejectMarkup: true},
			"slug":                 {Type: validate.String, Required: true, Pattern: slugPattern},
			"event_date":           {Type: validate.String, Max: validate.Bound(64)},
			"venue":                {Type: validate.String, Max: validate.Bound(300), RejectMarkup: true},
			"story":                {Type: validate.String, Max: validate.Bound(5000)},
			"custom_domain":        {Type: validate.String, Max: validate.Bound(253)},
			"background_music_url": {Type: validate.URL},
			"video_url":            {Type: validate.URL},
			"custom_css":           {Type: validate.String, Max: validate.Bound(20000)},
		}},
		Moderate: map[string]moderation.Context{
			"title": moderation.General,
			"story": moderation.General,
		},
	}
}

// InvitationUpdate is InvitationWrite for edits: the sensitive operation
// limiter, an id path parameter and no required fields.
func InvitationUpdate() Config {
	c := InvitationWrite()
	c.Name = "invitationUpdate"
	c.RateLimiter = ratelimit.SensitiveOperation
	body := make(validate.Schema, len(c.Schemas.Body))
	for k, r := range c.Schemas.Body {
		r.Required = false
		body[k] = r
	}
	delete(body, "slug")
	c.Schemas = Schemas{Body: body, Params: idParam()}
	return c
}

// GalleryUpload secures photo uploads.
func GalleryUpload(p upload.Policy) Config {
	return Config{
		Name:        "galleryUpload",
		RateLimiter: ratelimit.FileUpload,
		RequireAuth: true,
		CSRF:        true,
		Schemas:     Schemas{Params: idParam()},
		Upload:      &p,
	}
}

// WishList validates paging for the public wish list.
func WishList() Config {
	c := Public()
	c.Name = "wishList"
	c.Schemas = Schemas{
		Params: slugParam(),
		Query: validate.Schema{
			"limit":  {Type: validate.Number, Min: validate.Bound(1), Max: validate.Bound(100)},
			"offset": {Type: validate.Number, Min: validate.Bound(0)},
		},
	}
	return c
}
