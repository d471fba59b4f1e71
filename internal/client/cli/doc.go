// Package cli provides the interactive gophsky command-line client.
//
// It wires configuration, the encrypted credential store, the XRPC clients,
// the session manager, feed operations and the video upload pipeline behind
// a small REPL. On start the previous session is restored from the store,
// so a successful login survives restarts.
//
// Commands:
//   - login / logout / whoami
//   - timeline [more]   read the home timeline, page by page
//   - feed <actor>      read an account's posts
//   - post [text]       publish a text post
//   - upload <path>     upload a video and post it
//   - stats             counters for XRPC calls, refreshes and uploads
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
