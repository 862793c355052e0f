package core

const (
	EventImageCreated = "image.created"
	EventImageDeleted = "image.deleted"
	EventLikeToggled  = "like.toggled"
)

type (
	// FeedEvent describes a change clients showing the feed should react to.
	FeedEvent struct {
		Type     string `json:"type"`
		ImageID  string `json:"imageId"`
		AuthorID string `json:"authorId,omitempty"`
		Likes    int    `json:"likes"`
	}

	Notifier interface {
		Publish(event FeedEvent)
	}

	NopNotifier struct{}
)

func (NopNotifier) Publish(FeedEvent) {}
