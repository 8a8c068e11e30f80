package database

import (
	"context"

	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/render"
)

type nopRenderer struct{}

func (nopRenderer) Render(context.Context, string, mediatypes.MIME, int) render.Result {
	return render.Result{}
}
