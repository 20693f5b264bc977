package api

import (
	"net/http"

	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/repo"
)

const defaultWishPage = 20

func (a *API) invitationBySlug(x *pipeline.Exchange) (repo.Invitation, error) {
	inv, err := a.store.InvitationBySlug(x.Request.Context(), x.Param("slug"))
	return inv, notFound(err, "Invitation not found")
}

func number(m map[string]any, key string, def int) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return def
}

func (a *API) handleRSVP(w http.ResponseWriter, x *pipeline.Exchange) error {
	inv, err := a.invitationBySlug(x)
	if err != nil {
		return err
	}
	body, _ := x.Body()
	attending, _ := body["attending"].(bool)
	rsvp, err := a.store.CreateRSVP(x.Request.Context(), repo.RSVP{
		InvitationID: inv.ID,
		GuestName:    x.String("guest_name"),
		Attending:    attending,
		Guests:       number(body, "guests", 1),
		Message:      x.String("message"),
	})
	if err != nil {
		return err
	}
	ok(w, http.StatusCreated, rsvp)
	return nil
}

func (a *API) handleCreateWish(w http.ResponseWriter, x *pipeline.Exchange) error {
	inv, err := a.invitationBySlug(x)
	if err != nil {
		return err
	}
	wish, err := a.store.CreateWish(x.Request.Context(), repo.Wish{
		InvitationID: inv.ID,
		GuestName:    x.String("guest_name"),
		Message:      x.String("message"),
	})
	if err != nil {
		return err
	}
	ok(w, http.StatusCreated, wish)
	return nil
}

func (a *API) handleListWishes(w http.ResponseWriter, x *pipeline.Exchange) error {
	inv, err := a.invitationBySlug(x)
	if err != nil {
		return err
	}
	limit := number(x.Query, "limit", defaultWishPage)
	offset := number(x.Query, "offset", 0)
	wishes, err := a.store.ListWishes(x.Request.Context(), inv.ID, limit, offset)
	if err != nil {
		return err
	}
	ok(w, http.StatusOK, map[string]any{"wishes": wishes, "limit": limit, "offset": offset})
	return nil
}
