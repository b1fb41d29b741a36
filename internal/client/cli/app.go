package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/config"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/client/registry"
	"github.com/dmitrijs2005/preshare/internal/client/repositories"
	"github.com/dmitrijs2005/preshare/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/preshare/internal/client/selection"
	"github.com/dmitrijs2005/preshare/internal/client/session"
	"github.com/dmitrijs2005/preshare/internal/client/workflow"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

// Sessions is the part of the session manager the CLI drives.
type Sessions interface {
	Login(ctx context.Context, username, password string) (*session.Session, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, username, email, password, confirm string) error
	Restore(ctx context.Context) (bool, error)
	CurrentIdentity() (*models.Identity, bool)
	State() session.State
}

// Listing is one displayed partition. Responses that arrive after Close
// are dropped.
type Listing interface {
	Refresh() ([]models.DataAccess, error)
	Close()
}

// Records opens listings over the registry partitions and resolves listed ids.
type Records interface {
	Open(ctx context.Context, p registry.Partition) Listing
	Lookup(id int64) (models.DataAccess, bool)
}

type registryRecords struct {
	*registry.Registry
}

func (r registryRecords) Open(ctx context.Context, p registry.Partition) Listing {
	return r.NewView(ctx, p)
}

// Actions are the mutating operations on records.
type Actions interface {
	Grant(ctx context.Context, id int64, readers []string) (models.DataAccess, error)
	Revoke(ctx context.Context, id int64, readers []string) (models.DataAccess, error)
	UploadFile(ctx context.Context, path string) (models.DataAccess, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, id int64, dir string) (string, error)
}

type Directory interface {
	Usernames(ctx context.Context) ([]string, error)
}

type App struct {
	config    *config.Config
	sessions  Sessions
	records   Records
	actions   Actions
	directory Directory
	selection *selection.Controller
	log       logging.Logger

	// listed is what the last owned/granted command displayed, view the
	// listing it came from.
	listed    selection.List
	view      Listing
	partition registry.Partition

	reader *bufio.Reader
	out    io.Writer

	closers []func() error
}

// Build wires the application from c: local database, REST client, session
// manager, registry, selection, optional gateway and the workflow.
func Build(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	mode, err := selection.ParseMode(c.SelectionMode)
	if err != nil {
		return nil, err
	}

	db, err := repositories.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	api, err := client.NewHTTPClient(c.ServerURL,
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(log.With("component", "http")),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessions := session.NewManager(api, metadata.NewSessionStore(db), log.With("component", "session"))
	api.SetTokenSource(sessions)

	reg := registry.New(api, log.With("component", "registry"))
	sel := selection.New(selection.List(nil), mode)
	sessions.OnEnd(reg.Reset)
	sessions.OnEnd(sel.Clear)

	opts := []workflow.Option{workflow.WithLogger(log.With("component", "workflow"))}
	closers := []func() error{db.Close}
	if c.GatewayAddr == "" {
		log.Warn(ctx, "no re-encryption gateway configured, grant and revoke will not re-key readers")
	} else {
		gw, err := gateway.NewGRPCClient(c.GatewayAddr, sessions, log.With("component", "gateway"))
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		opts = append(opts, workflow.WithGateway(gw, c.Threshold))
		closers = append(closers, gw.Close)
	}

	wf := workflow.New(reg, sessions, opts...)
	wf.Track(sel)

	a := NewApp(c, sessions, registryRecords{reg}, wf, api, sel, log)
	a.closers = closers
	return a, nil
}

// NewApp assembles an App from already constructed parts.
func NewApp(c *config.Config, s Sessions, r Records, act Actions, dir Directory, sel *selection.Controller, log logging.Logger) *App {
	return &App{
		config:    c,
		sessions:  s,
		records:   r,
		actions:   act,
		directory: dir,
		selection: sel,
		log:       log,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}
}

// Run restores the previous session and runs the REPL until the user exits
// or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to preshare CLI (type 'help' for commands)")
	if a.config.GatewayAddr == "" {
		printWarn(a.out, "No re-encryption gateway configured: grant and revoke will not re-key readers")
	}
	a.restore(ctx)

	// Commands prompt through the same reader, so the loop must not buffer
	// ahead of it.
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) Close() error {
	a.closeView()
	err := closeAll(a.closers)
	a.closers = nil
	return err
}

func closeAll(fns []func() error) error {
	var first error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) restore(ctx context.Context) {
	ok, err := a.sessions.Restore(ctx)
	if err != nil {
		a.log.Warn(ctx, "session restore failed", "error", err)
		printWarn(a.out, "Could not restore the previous session: %s", describeError(err))
		return
	}
	if ok {
		if id, found := a.sessions.CurrentIdentity(); found {
			printSuccess(a.out, "Logged in as %s", id.Username)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessions.State() == session.Authenticated
}

func (a *App) status() string {
	id, ok := a.sessions.CurrentIdentity()
	if !ok {
		return "anonymous"
	}
	s := id.Username
	if d, ok := a.selection.Selected(); ok {
		s = fmt.Sprintf("%s #%d", s, d.ID)
	}
	return s
}
