package types

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidDataURL = errors.New("types: invalid data URL")

// Blob is a self-describing media payload. Every image, video or audio value
// crossing the provider boundary travels as a Blob, never as bare bytes.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

func (b Blob) Empty() bool { return len(b.Data) == 0 }

// DataURL renders the blob as "data:<mime>;base64,<payload>".
func (b Blob) DataURL() string {
	if b.Empty() {
		return ""
	}
	mime := b.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// ParseDataURL is the inverse of DataURL. Only base64 payloads are accepted.
func ParseDataURL(s string) (Blob, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return Blob{}, ErrInvalidDataURL
	}
	head, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return Blob{}, ErrInvalidDataURL
	}
	mime, enc, _ := strings.Cut(head, ";")
	if enc != "base64" {
		return Blob{}, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Blob{}, ErrInvalidDataURL
	}
	return Blob{MIMEType: mime, Data: data}, nil
}
