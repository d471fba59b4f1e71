package records

const (
	FacetMention = "app.bsky.richtext.facet#mention"
	FacetLink    = "app.bsky.richtext.facet#link"
	FacetTag     = "app.bsky.richtext.facet#tag"
)

// Facet annotates a UTF-8 byte range of a post's text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a half-open range of UTF-8 byte offsets.
type ByteSlice struct {
	ByteStart int64 `json:"byteStart"`
	ByteEnd   int64 `json:"byteEnd"`
}

// FacetFeature is one of mention (DID), link (URI) or tag (Tag), selected
// by Type. Unknown feature types keep only their tag.
type FacetFeature struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// Mention, Link and Tag build the three known features.
func Mention(did string) FacetFeature { return FacetFeature{Type: FacetMention, DID: did} }
func Link(uri string) FacetFeature    { return FacetFeature{Type: FacetLink, URI: uri} }
func Tag(tag string) FacetFeature     { return FacetFeature{Type: FacetTag, Tag: tag} }
