package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophsky/internal/feed"
)

// Upload sends the video at args[0] through the upload pipeline and, once
// the video service has produced a blob, publishes it as a post. The post
// text and alt text are prompted for before the upload starts.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: upload <path>")
		return errUsage
	}
	path := strings.Join(args, " ")

	text, err := getSimpleText(a.reader, "Post text (optional)", a.out)
	if err != nil {
		return err
	}
	alt, err := getSimpleText(a.reader, "Alt text (optional)", a.out)
	if err != nil {
		return err
	}

	blob, err := a.uploader.UploadVideo(ctx, path, progressPrinter(a.out))
	if err != nil {
		fmt.Fprintln(a.out, describeError(err))
		return err
	}
	fmt.Fprintln(a.out, "Video processed.")

	ref, err := a.feed.CreatePost(ctx, feed.NewVideoPost(text, blob, alt, a.now()))
	if err != nil {
		fmt.Fprintln(a.out, describeError(err))
		return err
	}

	fmt.Fprintf(a.out, "Posted: %s\n", ref.URI)
	return nil
}

// progressPrinter renders upload progress in 10% steps on a single line.
func progressPrinter(w io.Writer) func(float64) {
	last := -1
	return func(f float64) {
		pct := int(f * 100)
		step := pct / 10
		if step == last {
			return
		}
		last = step
		fmt.Fprintf(w, "\rUploading... %3d%%", pct)
		if f >= 1 {
			fmt.Fprintln(w)
		}
	}
}
