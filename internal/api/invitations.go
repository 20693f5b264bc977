package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/repo"
)

// invitationFields are the optional body fields stored on an invitation.
var invitationFields = []string{
	"event_date", "venue", "story",
	"custom_domain", "background_music_url", "video_url", "custom_css",
}

type invitationResponse struct {
	Invitation     repo.Invitation `json:"invitation"`
	StrippedFields []string        `json:"strippedFields,omitempty"`
	EditableUntil  *time.Time      `json:"editableUntil,omitempty"`
}

func pickFields(x *pipeline.Exchange) map[string]any {
	body, _ := x.Body()
	out := make(map[string]any, len(invitationFields))
	for _, f := range invitationFields {
		if v, ok := body[f]; ok {
			out[f] = v
		}
	}
	return out
}

func editableUntil(id *auth.Identity, createdAt time.Time) *time.Time {
	d := id.Tier.EditDeadline(createdAt)
	if d.IsZero() {
		return nil
	}
	return &d
}

// owned loads the invitation named by the id parameter and checks that the
// caller may change it.
func (a *API) owned(x *pipeline.Exchange) (repo.Invitation, error) {
	inv, err := a.store.InvitationByID(x.Request.Context(), x.Param("id"))
	if err != nil {
		return repo.Invitation{}, notFound(err, "Invitation not found")
	}
	if inv.OwnerID != x.Identity.ID && x.Identity.Role != "admin" {
		return repo.Invitation{}, apierr.Forbidden("Not the owner of this invitation")
	}
	return inv, nil
}

func (a *API) handleCreateInvitation(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	fields := pickFields(x)
	stripped := x.Identity.Tier.StripEliteFields(fields)

	inv, err := a.store.CreateInvitation(ctx, repo.Invitation{
		OwnerID: x.Identity.ID,
		Slug:    x.String("slug"),
		Title:   x.String("title"),
		Fields:  fields,
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return apierr.Conflict("Slug already taken")
		}
		return err
	}
	if len(stripped) > 0 {
		log.FromContext(ctx).Info(ctx, "elite fields stripped", "invitation_id", inv.ID, "tier", string(x.Identity.Tier), "fields", stripped)
	}
	ok(w, http.StatusCreated, invitationResponse{
		Invitation:     inv,
		StrippedFields: stripped,
		EditableUntil:  editableUntil(x.Identity, inv.CreatedAt),
	})
	return nil
}

func (a *API) handleUpdateInvitation(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	inv, err := a.owned(x)
	if err != nil {
		return err
	}
	if !x.Identity.Tier.CanEdit(inv.CreatedAt, a.clock.Now()) {
		deadline := x.Identity.Tier.EditDeadline(inv.CreatedAt)
		return apierr.Forbidden("Edit window for the " + string(x.Identity.Tier) + " plan closed on " + deadline.UTC().Format(time.RFC3339))
	}

	fields := pickFields(x)
	stripped := x.Identity.Tier.StripEliteFields(fields)
	inv, err = a.store.UpdateInvitation(ctx, inv.ID, x.String("title"), fields)
	if err != nil {
		return notFound(err, "Invitation not found")
	}
	ok(w, http.StatusOK, invitationResponse{
		Invitation:     inv,
		StrippedFields: stripped,
		EditableUntil:  editableUntil(x.Identity, inv.CreatedAt),
	})
	return nil
}

func (a *API) handleGetInvitation(w http.ResponseWriter, x *pipeline.Exchange) error {
	inv, err := a.store.InvitationBySlug(x.Request.Context(), x.Param("slug"))
	if err != nil {
		return notFound(err, "Invitation not found")
	}
	ok(w, http.StatusOK, inv)
	return nil
}
