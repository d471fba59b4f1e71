package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/gophsky/internal/client/config"
	"github.com/dmitrijs2005/gophsky/internal/credstore"
	"github.com/dmitrijs2005/gophsky/internal/cryptox"
	"github.com/dmitrijs2005/gophsky/internal/feed"
	"github.com/dmitrijs2005/gophsky/internal/logging"
	"github.com/dmitrijs2005/gophsky/internal/records"
	"github.com/dmitrijs2005/gophsky/internal/session"
	"github.com/dmitrijs2005/gophsky/internal/upload"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
	"github.com/prometheus/client_golang/prometheus"
)

const userAgent = "gophsky-cli"

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

type sessionService interface {
	Login(ctx context.Context, identifier, password string) (session.Session, error)
	Restore(ctx context.Context) error
	Current() (session.Session, bool)
	Logout(ctx context.Context)
}

type feedService interface {
	Timeline(ctx context.Context, cursor string, limit int) (records.Feed, error)
	AuthorFeed(ctx context.Context, actor, cursor string, limit int) (records.Feed, error)
	CreatePost(ctx context.Context, post records.PostRecord) (records.StrongRef, error)
}

type videoUploader interface {
	UploadVideo(ctx context.Context, path string, onProgress func(float64)) (records.BlobRef, error)
}

// App is the interactive client. It is not safe for concurrent use; the
// REPL runs one command at a time.
type App struct {
	config   *config.Config
	sessions sessionService
	feed     feedService
	uploader videoUploader
	log      logging.Logger
	reader   *bufio.Reader
	out      io.Writer
	closer   io.Closer
	now      func() time.Time
	// metrics is read by the stats command.
	metrics prometheus.Gatherer

	// cursor is the next timeline page, empty before the first read and
	// after the last page.
	cursor string
	// pageSize bounds each timeline or author feed request.
	pageSize int
}

// NewApp opens the credential store and wires the services described by c.
// The store passphrase comes from c.StorePassphrase or an interactive prompt.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(os.Stderr, c.LogLevel, c.LogFormat)
	reader := bufio.NewReader(os.Stdin)

	passphrase := []byte(c.StorePassphrase)
	if len(passphrase) == 0 {
		pw, err := getPassword(os.Stdout, "Credential store passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		passphrase = pw
	}
	store, err := credstore.OpenSQLite(ctx, c.CredentialsPath, string(passphrase))
	cryptox.Wipe(passphrase)
	if err != nil {
		log.Error(ctx, "error opening credential store", "path", c.CredentialsPath, "error", err)
		return nil, err
	}

	opts := []xrpc.Option{
		xrpc.WithTimeout(c.HTTPTimeout),
		xrpc.WithRateLimit(c.RequestsPerSecond, c.RateBurst),
		xrpc.WithLogger(log),
		xrpc.WithUserAgent(userAgent),
	}
	pds := xrpc.NewClient(c.ServiceURL, opts...)
	video := xrpc.NewClient(c.VideoServiceURL, opts...)

	sessions := session.NewManager(pds, store, session.WithLogger(log))

	var prober upload.Prober
	if ff := upload.NewFFProbe(c.FFProbePath, 0); ff.Available() {
		prober = ff
	} else {
		log.Warn(ctx, "ffprobe not found, video duration will not be checked", "binary", c.FFProbePath)
	}

	pipeline := upload.New(pds, video, sessions, prober, upload.Config{
		ServiceDID: c.VideoServiceDID,
		Limits: upload.Limits{
			MaxBytes:    c.MaxVideoBytes,
			MaxDuration: c.MaxVideoDuration,
		},
		PollInterval:    c.PollInterval,
		PollMaxAttempts: c.PollMaxAttempts,
	}, log)

	return &App{
		config:   c,
		sessions: sessions,
		feed:     feed.NewService(pds, sessions),
		uploader: pipeline,
		log:      log,
		reader:   reader,
		out:      os.Stdout,
		closer:   store,
		now:      time.Now,
		metrics:  prometheus.DefaultGatherer,
		pageSize: defaultPageSize,
	}, nil
}

// Run restores the previous session, then blocks in the REPL until the
// user exits. The credential store is closed on return.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to gophsky (type 'help' for commands)")
	a.restore(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// Close releases the credential store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func (a *App) restore(ctx context.Context) {
	err := a.sessions.Restore(ctx)
	switch {
	case err == nil:
		if s, ok := a.sessions.Current(); ok {
			fmt.Fprintf(a.out, "Welcome back, @%s\n", s.Handle)
		}
	case errors.Is(err, session.ErrNoActiveSession):
	case errors.Is(err, session.ErrSessionExpired):
		fmt.Fprintln(a.out, "Your session has expired, please log in again.")
	default:
		a.log.Warn(ctx, "session restore failed", "error", err)
		fmt.Fprintln(a.out, describeError(err))
	}
}

func (a *App) isLoggedIn() bool {
	_, ok := a.sessions.Current()
	return ok
}

func (a *App) getStatus() string {
	if s, ok := a.sessions.Current(); ok {
		return fmt.Sprintf("(@%s)", s.Handle)
	}
	return ""
}
