package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsky/internal/records"
)

const defaultPageSize = 20

var errUsage = errors.New("usage")

// Timeline prints a page of the home timeline. "timeline more" continues
// from the cursor of the previous page.
func (a *App) Timeline(ctx context.Context, args []string) error {
	cursor := ""
	if len(args) > 0 && args[0] == "more" {
		if a.cursor == "" {
			fmt.Fprintln(a.out, "No more posts.")
			return nil
		}
		cursor = a.cursor
	}

	page, err := a.feed.Timeline(ctx, cursor, a.pageSize)
	if err != nil {
		fmt.Fprintln(a.out, describeError(err))
		return err
	}
	a.cursor = page.Cursor

	printFeed(a.out, page)
	return nil
}

// AuthorFeed prints the latest posts of one account.
func (a *App) AuthorFeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: feed <handle|did>")
		return errUsage
	}

	page, err := a.feed.AuthorFeed(ctx, strings.TrimPrefix(args[0], "@"), "", a.pageSize)
	if err != nil {
		fmt.Fprintln(a.out, describeError(err))
		return err
	}

	printFeed(a.out, page)
	return nil
}

// Post publishes a text post. Without arguments the text is read
// interactively and may span several lines.
func (a *App) Post(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		if text, err = GetMultiline(a.reader, "Enter post text", a.out); err != nil {
			return err
		}
	}

	ref, err := a.feed.CreatePost(ctx, records.NewPostRecord(text, a.now()))
	if err != nil {
		fmt.Fprintln(a.out, describeError(err))
		return err
	}

	fmt.Fprintf(a.out, "Posted: %s\n", ref.URI)
	return nil
}
