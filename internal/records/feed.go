package records

import "encoding/json"

const (
	TypeReasonRepost = "app.bsky.feed.defs#reasonRepost"
	TypeReasonPin    = "app.bsky.feed.defs#reasonPin"
)

// ReasonKind names why a post appears in a feed.
type ReasonKind int

const (
	ReasonUnknown ReasonKind = iota
	ReasonRepost
	ReasonPin
)

// Reason explains a feed item that is not simply an authored post. Unknown
// reasons keep only their tag and encode as null.
type Reason struct {
	Type      string  `json:"$type"`
	By        *Author `json:"by,omitempty"`
	URI       string  `json:"uri,omitempty"`
	CID       string  `json:"cid,omitempty"`
	IndexedAt string  `json:"indexedAt,omitempty"`
}

func (r Reason) Kind() ReasonKind {
	switch r.Type {
	case TypeReasonRepost:
		return ReasonRepost
	case TypeReasonPin:
		return ReasonPin
	default:
		return ReasonUnknown
	}
}

func (r Reason) MarshalJSON() ([]byte, error) {
	if r.Kind() == ReasonUnknown {
		return []byte("null"), nil
	}
	type alias Reason
	return json.Marshal(alias(r))
}

func (r *Reason) UnmarshalJSON(data []byte) error {
	type alias Reason
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if Reason(a).Kind() == ReasonUnknown {
		*r = Reason{Type: a.Type}
		return nil
	}
	*r = Reason(a)
	return nil
}

// ReplyContext carries the thread a feed item replies to.
type ReplyContext struct {
	Root              *Post   `json:"root,omitempty"`
	Parent            *Post   `json:"parent,omitempty"`
	GrandparentAuthor *Author `json:"grandparentAuthor,omitempty"`
}

// FeedViewPost is one item of a timeline or author feed.
type FeedViewPost struct {
	Post        Post          `json:"post"`
	Reply       *ReplyContext `json:"reply,omitempty"`
	Reason      *Reason       `json:"reason,omitempty"`
	FeedContext string        `json:"feedContext,omitempty"`
}

// Feed is a page of feed items. An empty Cursor means the end was reached.
type Feed struct {
	Items  []FeedViewPost `json:"feed"`
	Cursor string         `json:"cursor,omitempty"`
}
