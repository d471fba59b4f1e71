package records

import (
	"encoding/json"
	"errors"
)

// BlobRef points at an uploaded blob by content hash.
//
// Two wire forms exist: the current one
// {"$type":"blob","ref":{"$link":"..."},"mimeType":"...","size":N} and the
// legacy {"cid":"...","mimeType":"..."}. A BlobRef re-encodes in the form it
// was decoded from.
type BlobRef struct {
	Link     string
	MimeType string
	Size     int64

	legacy bool
}

// NewLegacyBlobRef returns a BlobRef that encodes in the legacy form.
func NewLegacyBlobRef(cid, mimeType string) BlobRef {
	return BlobRef{Link: cid, MimeType: mimeType, legacy: true}
}

// Legacy reports whether b encodes in the legacy form.
func (b BlobRef) Legacy() bool { return b.legacy }

type blobLink struct {
	Link string `json:"$link"`
}

type blobWire struct {
	Type     string    `json:"$type,omitempty"`
	Ref      *blobLink `json:"ref,omitempty"`
	CID      string    `json:"cid,omitempty"`
	MimeType string    `json:"mimeType"`
	Size     int64     `json:"size,omitempty"`
}

func (b BlobRef) MarshalJSON() ([]byte, error) {
	if b.legacy {
		return json.Marshal(blobWire{CID: b.Link, MimeType: b.MimeType})
	}
	return json.Marshal(struct {
		Type     string   `json:"$type"`
		Ref      blobLink `json:"ref"`
		MimeType string   `json:"mimeType"`
		Size     int64    `json:"size"`
	}{Type: "blob", Ref: blobLink{Link: b.Link}, MimeType: b.MimeType, Size: b.Size})
}

func (b *BlobRef) UnmarshalJSON(data []byte) error {
	var w blobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Ref != nil:
		*b = BlobRef{Link: w.Ref.Link, MimeType: w.MimeType, Size: w.Size}
	case w.CID != "":
		*b = BlobRef{Link: w.CID, MimeType: w.MimeType, legacy: true}
	default:
		return errors.New("blob: missing ref and cid")
	}
	return nil
}

// Thumb is an image that is either a CDN URL (views) or a blob (records).
// Exactly one of URL and Blob is set after decoding.
type Thumb struct {
	URL  string
	Blob *BlobRef
}

func (t Thumb) MarshalJSON() ([]byte, error) {
	if t.Blob != nil {
		return json.Marshal(t.Blob)
	}
	return json.Marshal(t.URL)
}

func (t *Thumb) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		*t = Thumb{URL: url}
		return nil
	}
	var blob BlobRef
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}
	*t = Thumb{Blob: &blob}
	return nil
}

// AspectRatio is a width:height pair, not necessarily in pixels.
type AspectRatio struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}
