package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsky/internal/feed"
	"github.com/dmitrijs2005/gophsky/internal/records"
	"github.com/dmitrijs2005/gophsky/internal/session"
	"github.com/dmitrijs2005/gophsky/internal/upload"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

// describeError turns an error from the services into one line for the user.
func describeError(err error) string {
	switch {
	case errors.Is(err, session.ErrAuthenticationFailed):
		return "Invalid handle or password."
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrRefreshFailed):
		return "Not logged in. Use 'login' first."
	case errors.Is(err, upload.ErrInvalidFormat):
		return "Unsupported or unreadable video file: " + err.Error()
	case errors.Is(err, upload.ErrFileTooLarge):
		return "Video is too large: " + err.Error()
	case errors.Is(err, upload.ErrDurationTooLong):
		return "Video is too long: " + err.Error()
	case errors.Is(err, upload.ErrTimedOut):
		return "The video service is still processing the video. Try again later."
	case errors.Is(err, upload.ErrProcessingFailed), errors.Is(err, upload.ErrUploadFailed),
		errors.Is(err, upload.ErrAuthFailed):
		return "Upload failed: " + err.Error()
	case errors.Is(err, feed.ErrEmptyPost):
		return "Nothing to post."
	case errors.Is(err, feed.ErrPostTooLong):
		return fmt.Sprintf("Post is longer than %d characters.", feed.MaxPostLength)
	case errors.Is(err, xrpc.ErrRateLimited):
		if d := xrpc.RetryAfter(err); d > 0 {
			return fmt.Sprintf("Rate limited, retry in %s.", d.Round(time.Second))
		}
		return "Rate limited, retry later."
	case errors.Is(err, xrpc.ErrNetwork):
		return "Network error: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

// printFeed writes one block per feed item.
func printFeed(w io.Writer, page records.Feed) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No posts.")
		return
	}
	for _, item := range page.Items {
		printItem(w, item)
	}
	if page.Cursor != "" {
		fmt.Fprintln(w, "(type 'timeline more' for older posts)")
	}
}

func printItem(w io.Writer, item records.FeedViewPost) {
	p := item.Post
	if item.Reason != nil && item.Reason.Kind() == records.ReasonRepost && item.Reason.By != nil {
		fmt.Fprintf(w, "↻ reposted by %s\n", item.Reason.By.Name())
	}
	if item.Reason != nil && item.Reason.Kind() == records.ReasonPin {
		fmt.Fprintln(w, "pinned")
	}
	if item.Reply != nil && item.Reply.Parent != nil {
		fmt.Fprintf(w, "↳ reply to @%s\n", item.Reply.Parent.Author.Handle)
	}

	fmt.Fprintf(w, "%s (@%s)  %s\n", p.Author.Name(), p.Author.Handle, shortTime(p.Record.Created()))
	if text := strings.TrimSpace(p.Record.Text); text != "" {
		fmt.Fprintln(w, text)
	}
	if p.Embed != nil {
		if s := describeEmbed(*p.Embed); s != "" {
			fmt.Fprintln(w, s)
		}
	}
	fmt.Fprintf(w, "  %d replies  %d reposts  %d likes\n\n", p.ReplyCount, p.RepostCount, p.LikeCount)
}

func describeEmbed(e records.Embed) string {
	switch e.Kind() {
	case records.EmbedImages:
		return fmt.Sprintf("[%d image(s)]", len(e.Images.Images))
	case records.EmbedVideo, records.EmbedVideoView:
		return "[video]"
	case records.EmbedExternal:
		if e.External.External != nil {
			return "[link] " + e.External.External.URI
		}
		return "[link]"
	case records.EmbedRecord:
		return "[quote] " + quotedURI(e.Record)
	case records.EmbedRecordWithMedia:
		return "[quote with media] " + quotedURI(e.RecordWithMedia.Record)
	default:
		return ""
	}
}

func quotedURI(q *records.QuotedRecord) string {
	if q == nil || q.Record == nil {
		return ""
	}
	return q.Record.URI
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
