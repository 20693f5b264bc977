package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/pathutil"
	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/repo"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// handleGalleryUpload stores the files the upload stage accepted, within
// the owner's tier gallery limit.
func (a *API) handleGalleryUpload(w http.ResponseWriter, x *pipeline.Exchange) error {
	ctx := x.Request.Context()
	if len(x.Files) == 0 {
		return apierr.Upload(http.StatusBadRequest, "No file uploaded")
	}
	inv, err := a.owned(x)
	if err != nil {
		return err
	}
	existing, err := a.store.CountPhotos(ctx, inv.ID)
	if err != nil {
		return err
	}
	if err := x.Identity.Tier.CheckGallery(existing, len(x.Files)); err != nil {
		return apierr.Forbidden("Gallery limit reached: " + err.Error())
	}

	photos := make([]repo.Photo, 0, len(x.Files))
	for _, f := range x.Files {
		id := uuid.NewString()
		key, err := pathutil.JoinKey("invitations", inv.ID, id+f.Ext)
		if err != nil {
			return xerrors.Wrap(err, "gallery object key")
		}
		if err := a.uploads.Put(ctx, key, f); err != nil {
			return xerrors.Wrap(err, "store gallery photo")
		}
		photos = append(photos, repo.Photo{ID: id, Key: key, ContentType: f.ContentType, Size: f.Size})
	}

	// The count above only avoids needless uploads; this check is the one
	// that holds under concurrent requests.
	var limitErr error
	photos, err = a.store.AddPhotos(ctx, inv.ID, photos, func(n int) error {
		limitErr = x.Identity.Tier.CheckGallery(n, len(x.Files))
		return limitErr
	})
	if limitErr != nil {
		log.FromContext(ctx).Warn(ctx, "gallery limit reached after upload", "invitation_id", inv.ID, "orphaned", len(x.Files))
		return apierr.Forbidden("Gallery limit reached: " + limitErr.Error())
	}
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info(ctx, "gallery photos stored", "invitation_id", inv.ID, "count", len(photos))
	ok(w, http.StatusCreated, photos)
	return nil
}
