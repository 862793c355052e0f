package websocket

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// WatchersResponse reports how many sockets are following an image.
type WatchersResponse struct {
	ImageID  string `json:"imageId"`
	Watchers int    `json:"watchers"`
}

// HandleWatchers answers with the live watcher count of an image. Images
// nobody follows report zero.
func HandleWatchers(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	render.JSON(w, r, WatchersResponse{
		ImageID:  imageID,
		Watchers: GetWatchedImages()[imageID],
	})
}
