package records

import "encoding/json"

// Author is the basic profile view attached to posts and reposts.
//
// Viewer, Associated and Verification are kept as raw JSON; the client only
// passes them through. Handle is absent on blocked-author views.
type Author struct {
	DID          string          `json:"did"`
	Handle       string          `json:"handle,omitempty"`
	DisplayName  string          `json:"displayName,omitempty"`
	Avatar       string          `json:"avatar,omitempty"`
	Associated   json.RawMessage `json:"associated,omitempty"`
	Viewer       json.RawMessage `json:"viewer,omitempty"`
	Verification json.RawMessage `json:"verification,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	Labels       []Label         `json:"labels,omitzero"`
}

// Name returns the display name, or the handle when none is set.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// Label is a moderation label applied to an account or record.
type Label struct {
	Src string `json:"src"`
	URI string `json:"uri"`
	CID string `json:"cid,omitempty"`
	Val string `json:"val"`
	Neg bool   `json:"neg,omitempty"`
	Cts string `json:"cts"`
	Ver *int64 `json:"ver,omitempty"`
	Exp string `json:"exp,omitempty"`
	// Sig is the {"$bytes": ...} signature object.
	Sig json.RawMessage `json:"sig,omitempty"`
}
