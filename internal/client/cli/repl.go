package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Whoami(ctx context.Context) error
	Timeline(ctx context.Context, args []string) error
	AuthorFeed(ctx context.Context, args []string) error
	Post(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Stats(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the gophsky CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a' with the remaining tokens as arguments.
// Unknown commands are reported back to the user. The loop exits on EOF, on
// context cancellation, or when the user types "exit" or "quit".
//
//	Not logged in:
//	  - help            show available commands
//	  - login           authenticate with handle and app password
//	  - stats           request and upload counters
//	  - exit | quit     leave the program
//
//	Logged in:
//	  - help            show available commands
//	  - whoami          show the current account
//	  - timeline [more] home timeline; "more" fetches the next page
//	  - feed <actor>    posts by handle or DID
//	  - post [text]     publish a text post
//	  - upload <path>   upload a video and publish it
//	  - logout          end the session
//	  - stats           request and upload counters
//	  - exit | quit     leave the program
//
// Any errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("sky %s> ", statusFn()))

		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, timeline [more], feed <actor>, post [text], upload <path>, logout, stats, exit")
			} else {
				printlnFn("Available commands: login, stats, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "timeline", "tl":
			_ = a.Timeline(ctx, args)

		case "feed":
			_ = a.AuthorFeed(ctx, args)

		case "post":
			_ = a.Post(ctx, args)

		case "upload":
			_ = a.Upload(ctx, args)

		case "logout":
			_ = a.Logout(ctx)

		case "stats":
			_ = a.Stats(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
