package types

import "strings"

// Inspiration assets ----------------------------------------------------------

type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
	AssetAudio AssetKind = "audio"
	AssetText  AssetKind = "text"
)

// KindFromMIME maps a MIME type onto an asset kind; anything that is not
// image, video or audio is treated as text.
func KindFromMIME(mime string) AssetKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AssetImage
	case strings.HasPrefix(mime, "video/"):
		return AssetVideo
	case strings.HasPrefix(mime, "audio/"):
		return AssetAudio
	default:
		return AssetText
	}
}

// InspirationAsset is an uploaded reference. It is immutable once registered.
type InspirationAsset struct {
	ID          string    `json:"id"`
	Kind        AssetKind `json:"kind"`
	MIMEType    string    `json:"mimeType"`
	Payload     Blob      `json:"-"`
	DisplayName string    `json:"displayName"`
}

// AssetRef is the metadata-only view exposed to the reasoning model.
type AssetRef struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"name"`
	Kind        AssetKind `json:"kind"`
	Disclosed   bool      `json:"disclosed"`
}
