// Package records holds the Bluesky record and view types (posts, authors,
// embeds, feed reasons, facets, blobs) and their tag-discriminated JSON codecs.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Embed type tags, record and view forms.
const (
	TypeEmbedImages              = "app.bsky.embed.images"
	TypeEmbedImagesView          = "app.bsky.embed.images#view"
	TypeEmbedExternal            = "app.bsky.embed.external"
	TypeEmbedExternalView        = "app.bsky.embed.external#view"
	TypeEmbedRecord              = "app.bsky.embed.record"
	TypeEmbedRecordView          = "app.bsky.embed.record#view"
	TypeEmbedRecordWithMedia     = "app.bsky.embed.recordWithMedia"
	TypeEmbedRecordWithMediaView = "app.bsky.embed.recordWithMedia#view"
	TypeEmbedVideo               = "app.bsky.embed.video"
	TypeEmbedVideoView           = "app.bsky.embed.video#view"
)

// ErrInvalidEmbed is returned when an embed with a known tag is malformed.
var ErrInvalidEmbed = errors.New("invalid embed")

// EmbedKind names the variant held by an Embed.
type EmbedKind int

const (
	EmbedUnknown EmbedKind = iota
	EmbedImages
	EmbedExternal
	EmbedRecord
	EmbedRecordWithMedia
	EmbedVideo
	EmbedVideoView
)

func (k EmbedKind) String() string {
	switch k {
	case EmbedImages:
		return "images"
	case EmbedExternal:
		return "external"
	case EmbedRecord:
		return "record"
	case EmbedRecordWithMedia:
		return "recordWithMedia"
	case EmbedVideo:
		return "video"
	case EmbedVideoView:
		return "videoView"
	default:
		return "unknown"
	}
}

var kindByTag = map[string]EmbedKind{
	TypeEmbedImages:              EmbedImages,
	TypeEmbedImagesView:          EmbedImages,
	TypeEmbedExternal:            EmbedExternal,
	TypeEmbedExternalView:        EmbedExternal,
	TypeEmbedRecord:              EmbedRecord,
	TypeEmbedRecordView:          EmbedRecord,
	TypeEmbedRecordWithMedia:     EmbedRecordWithMedia,
	TypeEmbedRecordWithMediaView: EmbedRecordWithMedia,
	TypeEmbedVideo:               EmbedVideo,
	TypeEmbedVideoView:           EmbedVideoView,
}

var defaultTag = map[EmbedKind]string{
	EmbedImages:          TypeEmbedImages,
	EmbedExternal:        TypeEmbedExternal,
	EmbedRecord:          TypeEmbedRecord,
	EmbedRecordWithMedia: TypeEmbedRecordWithMedia,
	EmbedVideo:           TypeEmbedVideo,
	EmbedVideoView:       TypeEmbedVideoView,
}

// Embed is the tagged union attached to posts. For a known kind exactly one
// variant pointer is set; an Unknown embed only carries its tag.
type Embed struct {
	// Type is the $type tag as received. On encode it is kept when it names
	// the same kind as the populated variant.
	Type string

	Images          *ImageSet
	External        *ExternalLink
	Record          *QuotedRecord
	RecordWithMedia *QuotedRecordWithMedia
	Video           *Video
	VideoView       *VideoView
}

// Kind reports which variant e holds.
func (e Embed) Kind() EmbedKind {
	switch {
	case e.Images != nil:
		return EmbedImages
	case e.External != nil:
		return EmbedExternal
	case e.Record != nil:
		return EmbedRecord
	case e.RecordWithMedia != nil:
		return EmbedRecordWithMedia
	case e.Video != nil:
		return EmbedVideo
	case e.VideoView != nil:
		return EmbedVideoView
	default:
		return EmbedUnknown
	}
}

// ImageSet is app.bsky.embed.images in either form.
type ImageSet struct {
	Images []Image `json:"images,omitzero"`
}

// Image carries Image (blob) in record form and Thumb/Fullsize URLs in view
// form.
type Image struct {
	Alt         string       `json:"alt"`
	Image       *BlobRef     `json:"image,omitempty"`
	Thumb       string       `json:"thumb,omitempty"`
	Fullsize    string       `json:"fullsize,omitempty"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// ExternalLink is app.bsky.embed.external in either form.
type ExternalLink struct {
	External *ExternalCard `json:"external,omitempty"`
}

type ExternalCard struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       *Thumb `json:"thumb,omitempty"`
}

// QuotedRecord is app.bsky.embed.record in either form. Type is only used
// when the quote is nested inside a recordWithMedia embed.
type QuotedRecord struct {
	Type   string     `json:"$type,omitempty"`
	Record *RecordRef `json:"record,omitempty"`
}

// QuotedRecordWithMedia is app.bsky.embed.recordWithMedia in either form.
type QuotedRecordWithMedia struct {
	Record *QuotedRecord `json:"record,omitempty"`
	Media  *Embed        `json:"media,omitempty"`
}

// Video is the app.bsky.embed.video record form.
type Video struct {
	Video        BlobRef      `json:"video"`
	Alt          string       `json:"alt,omitempty"`
	AspectRatio  *AspectRatio `json:"aspectRatio,omitempty"`
	Captions     []Caption    `json:"captions,omitzero"`
	Presentation string       `json:"presentation,omitempty"`
}

type Caption struct {
	Lang string  `json:"lang"`
	File BlobRef `json:"file"`
}

// VideoView is the app.bsky.embed.video#view form returned by the AppView.
type VideoView struct {
	CID         string       `json:"cid"`
	Playlist    string       `json:"playlist"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Alt         string       `json:"alt,omitempty"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
	// Presentation is "default" or "gif".
	Presentation string `json:"presentation,omitempty"`
}

// generalEmbed is the permissive shape shared by the images, external,
// record and recordWithMedia tags. Every field is optional.
type generalEmbed struct {
	Record   json.RawMessage `json:"record,omitempty"`
	Media    *Embed          `json:"media,omitempty"`
	Images   []Image         `json:"images,omitempty"`
	External *ExternalCard   `json:"external,omitempty"`
}

// DecodeEmbed decodes one embed by its $type tag. A missing or unrecognised
// tag yields an Unknown embed and no error; malformed JSON under a known tag
// yields an error wrapping ErrInvalidEmbed.
func DecodeEmbed(data []byte) (Embed, error) {
	if isNull(data) {
		return Embed{}, nil
	}

	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Embed{}, fmt.Errorf("%w: %w", ErrInvalidEmbed, err)
	}

	kind, ok := kindByTag[head.Type]
	if !ok {
		return Embed{Type: head.Type}, nil
	}

	e := Embed{Type: head.Type}
	var err error
	switch kind {
	case EmbedVideo:
		var v Video
		err = json.Unmarshal(data, &v)
		e.Video = &v
	case EmbedVideoView:
		var v VideoView
		err = json.Unmarshal(data, &v)
		e.VideoView = &v
	default:
		err = decodeGeneral(data, kind, &e)
	}
	if err != nil {
		return Embed{}, fmt.Errorf("%w: %s: %w", ErrInvalidEmbed, head.Type, err)
	}
	return e, nil
}

func decodeGeneral(data []byte, kind EmbedKind, e *Embed) error {
	var g generalEmbed
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}

	switch kind {
	case EmbedImages:
		e.Images = &ImageSet{Images: g.Images}
	case EmbedExternal:
		e.External = &ExternalLink{External: g.External}
	case EmbedRecord:
		q := &QuotedRecord{}
		if !isNull(g.Record) {
			q.Record = &RecordRef{}
			if err := json.Unmarshal(g.Record, q.Record); err != nil {
				return err
			}
		}
		e.Record = q
	case EmbedRecordWithMedia:
		rm := &QuotedRecordWithMedia{Media: g.Media}
		if !isNull(g.Record) {
			rm.Record = &QuotedRecord{}
			if err := json.Unmarshal(g.Record, rm.Record); err != nil {
				return err
			}
		}
		e.RecordWithMedia = rm
	}
	return nil
}

// EncodeEmbed encodes e with its $type tag. An Unknown embed encodes as
// JSON null.
func EncodeEmbed(e Embed) ([]byte, error) {
	kind := e.Kind()
	if kind == EmbedUnknown {
		return []byte("null"), nil
	}

	tag := e.Type
	if kindByTag[tag] != kind {
		tag = defaultTag[kind]
	}

	var variant any
	switch kind {
	case EmbedImages:
		variant = e.Images
	case EmbedExternal:
		variant = e.External
	case EmbedRecord:
		// The outer tag wins over a nested-quote tag.
		q := *e.Record
		q.Type = ""
		variant = q
	case EmbedRecordWithMedia:
		variant = e.RecordWithMedia
	case EmbedVideo:
		variant = e.Video
	case EmbedVideoView:
		variant = e.VideoView
	}

	return withType(tag, variant)
}

func (e Embed) MarshalJSON() ([]byte, error) { return EncodeEmbed(e) }

func (e *Embed) UnmarshalJSON(data []byte) error {
	d, err := DecodeEmbed(data)
	if err != nil {
		return err
	}
	*e = d
	return nil
}

// withType marshals v and prepends "$type" to the resulting object.
func withType(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"$type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body); len(inner) > 2 {
		buf.WriteByte(',')
		buf.Write(inner[1 : len(inner)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isNull(data []byte) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}
