package uploadtoken

import (
	"net/url"
	"strings"
	"time"
)

const (
	UploadPath   = "/api/uploads/"
	DownloadPath = "/api/blobs/"
)

// Links builds the public URLs of a blob store hosted by this server.
type Links struct {
	PublicURL string
	Signer    *Signer
}

func (l Links) base() string {
	return strings.TrimRight(l.PublicURL, "/")
}

func (l Links) UploadURL(storageID string, ttl time.Duration) (string, error) {
	token, err := l.Signer.Issue(storageID, ttl)
	if err != nil {
		return "", err
	}
	return l.base() + UploadPath + token, nil
}

func (l Links) DownloadURL(storageID string) string {
	return l.base() + DownloadPath + url.PathEscape(storageID)
}
