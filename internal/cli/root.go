// Package cli implements the sessionsync command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/atinyakov/SessionSync/internal/client/browser"
	"github.com/atinyakov/SessionSync/internal/client/config"
	"github.com/atinyakov/SessionSync/internal/client/remote"
	"github.com/atinyakov/SessionSync/internal/client/restore"
	"github.com/atinyakov/SessionSync/internal/client/syncer"
	"github.com/atinyakov/SessionSync/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Browser is an opened browser profile.
type Browser struct {
	Cookies restore.CookieStore
	Storage restore.PageStorage
	Close   func() error
}

// BrowserOpener opens the profile named by profile. storageDir holds the
// page storage mirror.
type BrowserOpener func(ctx context.Context, profile, storageDir string) (*Browser, error)

// App holds the collaborators of the command tree. Zero fields are filled
// with the real implementations by NewRootCmd.
type App struct {
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string

	// OpenBrowser opens the Firefox profile for push and pull.
	OpenBrowser BrowserOpener
	// Dial resolves the remote store for an endpoint.
	Dial syncer.Dialer
	// Store overrides the configuration store selected by flags.
	Store config.Store

	Version   string
	BuildDate string

	flags rootFlags
	log   *zap.Logger
}

type rootFlags struct {
	configPath string
	keyring    bool
	profile    string
	storageDir string
	verbose    bool
	json       bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(app *App) *cobra.Command {
	app.defaults()

	rootCmd := &cobra.Command{
		Use:   "sessionsync",
		Short: "End-to-end encrypted browser session sync",
		Long: `sessionsync copies a site's Firefox cookies and its page storage mirror
between machines.
Snapshots are encrypted with your sync key before they leave the machine.

Get started:
  sessionsync init                 Create a sync key
  sessionsync import <key>         Use a key created elsewhere
  sessionsync push <url>           Upload the session for a site
  sessionsync pull <url>           Replace the session with the uploaded one
  sessionsync ls                   List synced sites`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.initLogger()
		},
	}
	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default: $SESSIONSYNC_CONFIG or ~/.sessionsync/config.yaml)")
	pf.BoolVar(&app.flags.keyring, "keyring", false, "keep the sync key in the OS keyring")
	pf.StringVar(&app.flags.profile, "profile", "", "Firefox profile name or directory (default: the default profile)")
	pf.StringVar(&app.flags.storageDir, "storage-dir", "", "directory mirroring page storage (default: next to the config file)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "verbose logging")
	pf.BoolVar(&app.flags.json, "json", false, "output in JSON format")

	rootCmd.AddCommand(
		app.initCmd(),
		app.importCmd(),
		app.keyCmd(),
		app.resetCmd(),
		app.endpointCmd(),
		app.pushCmd(),
		app.pullCmd(),
		app.lsCmd(),
		app.rmCmd(),
		app.versionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, app *App, args []string) int {
	cmd := NewRootCmd(app)
	cmd.SetArgs(args)
	defer func() { _ = app.log.Sync() }()

	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(app.Err, syncer.Message(err))
		app.log.Debug("command failed", zap.Error(err))
		return 1
	}
	return 0
}

func (a *App) defaults() {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.Getenv == nil {
		a.Getenv = os.Getenv
	}
	if a.OpenBrowser == nil {
		a.OpenBrowser = OpenFirefox
	}
	if a.Dial == nil {
		f := &remote.Factory{}
		a.Dial = func(b config.Backend) (syncer.RemoteStore, error) { return f.Get(b) }
	}
	a.log = zap.NewNop()
}

func (a *App) initLogger() error {
	l := logger.New()
	level := "warn"
	if a.flags.verbose {
		level = "debug"
	}
	if err := l.InitConsole(level); err != nil {
		return err
	}
	a.log = l.Log
	return nil
}

func (a *App) configPath() string {
	if a.flags.configPath != "" {
		return a.flags.configPath
	}
	if p := a.Getenv("SESSIONSYNC_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath()
}

// store returns the configuration store selected by flags.
func (a *App) store() config.Store {
	if a.Store != nil {
		return a.Store
	}
	file := config.NewFileStore(a.configPath())
	if !a.flags.keyring {
		return file
	}
	name := "default"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return config.NewKeyringStore(file, name)
}

// defaultBackend is the endpoint used without a custom one.
func (a *App) defaultBackend() config.Backend {
	return config.Backend{
		URL:    a.Getenv("SESSIONSYNC_URL"),
		APIKey: a.Getenv("SESSIONSYNC_API_KEY"),
		CAFile: a.Getenv("SESSIONSYNC_CA_FILE"),
	}
}

func (a *App) storageDir() string {
	if a.flags.storageDir != "" {
		return a.flags.storageDir
	}
	return filepath.Join(filepath.Dir(a.configPath()), "storage")
}

// syncer builds a Syncer. With withBrowser the Firefox profile is opened
// and must be closed by calling the returned func.
func (a *App) syncer(ctx context.Context, withBrowser bool) (*syncer.Syncer, func(), error) {
	opts := []syncer.Option{
		syncer.WithLogger(a.log),
		syncer.WithDefaultBackend(a.defaultBackend()),
	}
	if !withBrowser {
		return syncer.New(a.store(), a.Dial, nil, nil, opts...), func() {}, nil
	}

	b, err := a.OpenBrowser(ctx, a.flags.profile, a.storageDir())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if b.Close == nil {
			return
		}
		if err := b.Close(); err != nil {
			a.log.Warn("close browser profile", zap.Error(err))
		}
	}
	return syncer.New(a.store(), a.Dial, b.Cookies, b.Storage, opts...), closeFn, nil
}

// OpenFirefox opens the cookie store of a Firefox profile and a page
// storage mirror under storageDir.
func OpenFirefox(ctx context.Context, profile, storageDir string) (*Browser, error) {
	p, err := browser.ResolveProfile(profile)
	if err != nil {
		return nil, err
	}
	cookies, err := browser.OpenFirefoxCookies(ctx, p.CookiesPath())
	if err != nil {
		return nil, fmt.Errorf("%w (is Firefox running?)", err)
	}
	return &Browser{
		Cookies: cookies,
		Storage: browser.NewFileStorage(storageDir),
		Close:   cookies.Close,
	}, nil
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "  ✔ %s\n", msg)
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "  → %s\n", msg)
}

func printError(w io.Writer, msg string) {
	fmt.Fprintf(w, "  ✗ %s\n", msg)
}
