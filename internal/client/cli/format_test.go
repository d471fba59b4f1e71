package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/gophsky/internal/records"
	"github.com/dmitrijs2005/gophsky/internal/session"
	"github.com/dmitrijs2005/gophsky/internal/upload"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: session.ErrAuthenticationFailed, want: "Invalid handle or password."},
		{err: fmt.Errorf("refresh: %w", session.ErrSessionExpired), want: "Not logged in. Use 'login' first."},
		{err: upload.ErrTimedOut, want: "The video service is still processing the video. Try again later."},
		{err: &upload.ProcessingError{JobID: "j1", Detail: "bad codec"}, want: "Upload failed: "},
		{err: fmt.Errorf("getTimeline: %w", xrpc.ErrRateLimited), want: "Rate limited, retry later."},
		{err: fmt.Errorf("getTimeline: %w", xrpc.ErrNetwork), want: "Network error: "},
	}

	for _, tt := range tests {
		assert.Contains(t, describeError(tt.err), tt.want, tt.err.Error())
	}
}

func TestPrintFeed(t *testing.T) {
	bob := records.Author{Handle: "bob.test", DisplayName: "Bob"}
	page := records.Feed{Items: []records.FeedViewPost{
		{
			Post: records.Post{
				Author: records.Author{Handle: "carol.test"},
				Record: records.PostRecord{Text: "quoted"},
				Embed: &records.Embed{Record: &records.QuotedRecord{
					Record: &records.RecordRef{URI: "at://did:plc:x/app.bsky.feed.post/1"},
				}},
			},
			Reason: &records.Reason{Type: records.TypeReasonRepost, By: &bob},
		},
		{
			Post:  records.Post{Author: bob, Embed: &records.Embed{VideoView: &records.VideoView{CID: "c"}}},
			Reply: &records.ReplyContext{Parent: &records.Post{Author: records.Author{Handle: "dave.test"}}},
		},
	}}

	var out bytes.Buffer
	printFeed(&out, page)

	s := out.String()
	assert.Contains(t, s, "reposted by Bob")
	assert.Contains(t, s, "carol.test (@carol.test)")
	assert.Contains(t, s, "[quote] at://did:plc:x/app.bsky.feed.post/1")
	assert.Contains(t, s, "reply to @dave.test")
	assert.Contains(t, s, "[video]")
	assert.NotContains(t, s, "timeline more")
}
