package records

import (
	"encoding/json"
	"time"
)

const (
	TypePost       = "app.bsky.feed.post"
	TypeViewRecord = "app.bsky.embed.record#viewRecord"
	TypeNotFound   = "app.bsky.embed.record#viewNotFound"
	TypeBlocked    = "app.bsky.embed.record#viewBlocked"
	TypeDetached   = "app.bsky.embed.record#viewDetached"
)

// StrongRef addresses one version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef places a post in a thread.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// PostRecord is the app.bsky.feed.post record as stored in a repository.
type PostRecord struct {
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs,omitzero"`
	Facets    []Facet   `json:"facets,omitzero"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
	Tags      []string  `json:"tags,omitzero"`
}

// NewPostRecord returns a text post stamped with createdAt in RFC 3339
// (UTC, millisecond precision).
func NewPostRecord(text string, createdAt time.Time) PostRecord {
	return PostRecord{Text: text, CreatedAt: FormatTime(createdAt)}
}

// Created parses CreatedAt. The zero time is returned for invalid values.
func (p PostRecord) Created() time.Time {
	return ParseTime(p.CreatedAt)
}

func (p PostRecord) MarshalJSON() ([]byte, error) {
	type alias PostRecord
	a := alias(p)
	if a.Embed != nil && a.Embed.Kind() == EmbedUnknown {
		a.Embed = nil
	}
	return withType(TypePost, a)
}

// RecordRef is the record carried by a quote embed. In record form only URI
// and CID are set; views add the author, the record value and nested embeds,
// or one of the NotFound / Blocked / Detached markers.
type RecordRef struct {
	Type        string          `json:"$type,omitempty"`
	URI         string          `json:"uri"`
	CID         string          `json:"cid,omitempty"`
	Author      *Author         `json:"author,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Embeds      []Embed         `json:"embeds,omitzero"`
	Labels      []Label         `json:"labels,omitzero"`
	IndexedAt   string          `json:"indexedAt,omitempty"`
	ReplyCount  *int64          `json:"replyCount,omitempty"`
	RepostCount *int64          `json:"repostCount,omitempty"`
	LikeCount   *int64          `json:"likeCount,omitempty"`
	QuoteCount  *int64          `json:"quoteCount,omitempty"`
	NotFound    bool            `json:"notFound,omitempty"`
	Blocked     bool            `json:"blocked,omitempty"`
	Detached    bool            `json:"detached,omitempty"`
}

// Ref returns the strong reference to the quoted record.
func (r RecordRef) Ref() StrongRef { return StrongRef{URI: r.URI, CID: r.CID} }

// Post decodes Value as a post record. ok is false when Value is absent or
// holds another record type.
func (r RecordRef) Post() (PostRecord, bool) {
	if len(r.Value) == 0 {
		return PostRecord{}, false
	}
	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(r.Value, &head); err != nil || head.Type != TypePost {
		return PostRecord{}, false
	}
	var p PostRecord
	if err := json.Unmarshal(r.Value, &p); err != nil {
		return PostRecord{}, false
	}
	return p, true
}

// Post is the app.bsky.feed.defs#postView returned by feed queries.
// Counters and Viewer are view state; they are not part of the record.
type Post struct {
	URI         string       `json:"uri"`
	CID         string       `json:"cid"`
	Author      Author       `json:"author"`
	Record      PostRecord   `json:"record"`
	Embed       *Embed       `json:"embed,omitempty"`
	ReplyCount  int64        `json:"replyCount"`
	RepostCount int64        `json:"repostCount"`
	LikeCount   int64        `json:"likeCount"`
	QuoteCount  int64        `json:"quoteCount"`
	IndexedAt   string       `json:"indexedAt"`
	Viewer      *ViewerState `json:"viewer,omitempty"`
	Labels      []Label      `json:"labels,omitzero"`
	NotFound    bool         `json:"notFound,omitempty"`
	Blocked     bool         `json:"blocked,omitempty"`
}

// Ref returns the strong reference to the post.
func (p Post) Ref() StrongRef { return StrongRef{URI: p.URI, CID: p.CID} }

// ViewerState holds the requesting account's relationship to a post.
// Like and Repost are the URIs of the viewer's like / repost records.
type ViewerState struct {
	Like              string `json:"like,omitempty"`
	Repost            string `json:"repost,omitempty"`
	ThreadMuted       bool   `json:"threadMuted,omitempty"`
	ReplyDisabled     bool   `json:"replyDisabled,omitempty"`
	EmbeddingDisabled bool   `json:"embeddingDisabled,omitempty"`
	Pinned            bool   `json:"pinned,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t the way AT Protocol records expect.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime accepts RFC 3339 timestamps with or without fractional seconds.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
