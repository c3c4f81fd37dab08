// Package cli implements the worldkeeper command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iudanet/worldkeeper/internal/changevector"
	"github.com/iudanet/worldkeeper/internal/client/api"
	"github.com/iudanet/worldkeeper/internal/client/auth"
	"github.com/iudanet/worldkeeper/internal/client/config"
	"github.com/iudanet/worldkeeper/internal/client/data"
	"github.com/iudanet/worldkeeper/internal/client/iocli"
	"github.com/iudanet/worldkeeper/internal/client/network"
	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/client/storage"
	"github.com/iudanet/worldkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/worldkeeper/internal/client/sync"
	"github.com/iudanet/worldkeeper/internal/crypto"
)

// skipSetup помечает команды, которым не нужна локальная база
const skipSetup = "skip-setup"

type options struct {
	configPath   string
	server       string
	dbPath       string
	password     string
	passwordFile string
	verbose      bool
	offline      bool
}

// App holds the resources shared by all commands of one invocation.
type App struct {
	io     iocli.IO
	logOut io.Writer
	opts   options

	cfg         config.Config
	logger      *slog.Logger
	store       *boltdb.Storage
	client      *api.Client
	auth        auth.Service
	probe       *network.Probe
	collections *storage.Collections

	// создаются лениво, см. engine
	session    *auth.Session
	sessionErr error
	adapter    *remote.Adapter
	manager    *sync.Manager
	data       data.Service
}

// New creates an App writing command output to cio and logs to logOut.
func New(cio iocli.IO, logOut io.Writer) *App {
	return &App{io: cio, logOut: logOut}
}

// Command builds the root command with every subcommand attached.
func (a *App) Command(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "worldkeeper",
		Short: "Offline-first worldbuilding data manager",
		Long: `worldkeeper keeps worlds, characters, locations and lore on this device
and synchronizes them with a worldkeeper server when one is reachable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "path to config file (default ~/.worldkeeper/config.yaml)")
	flags.StringVar(&a.opts.server, "server", "", "server URL")
	flags.StringVar(&a.opts.dbPath, "db", "", "path to local database")
	flags.StringVar(&a.opts.password, "password", "", "account password (not recommended, use env var or file)")
	flags.StringVar(&a.opts.passwordFile, "password-file", "", "path to file containing the account password")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&a.opts.offline, "offline", false, "do not contact the server")

	root.AddCommand(
		a.initCommand(),
		a.registerCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.statusCommand(),
		a.addCommand(),
		a.updateCommand(),
		a.getCommand(),
		a.listCommand(),
		a.deleteCommand(),
		a.syncCommand(),
		a.queueCommand(),
		a.conflictsCommand(),
		a.resolveCommand(),
		a.settingsCommand(),
		a.migrateCommand(),
		a.watchCommand(),
		a.uploadCommand(),
		a.daemonCommand(),
	)
	return root
}

func (a *App) configPath() string {
	if a.opts.configPath != "" {
		return a.opts.configPath
	}
	return config.DefaultPath()
}

// loadConfig читает файл и окружение, затем применяет флаги
func (a *App) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath())
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = a.opts.server
	}
	if flags.Changed("db") {
		cfg.DBPath = a.opts.dbPath
	}
	if a.opts.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = *cfg
	a.logger = slog.New(slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *App) setup(cmd *cobra.Command) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := boltdb.New(cmd.Context(), a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}

	a.store = store
	a.collections = storage.NewCollections(store)
	a.client = api.NewClient(a.cfg.Server, a.logger)
	a.auth = auth.NewService(a.client, store, a.logger)
	a.probe = network.NewProbe(a.client, a.logger, a.cfg.ProbeTimeout)
	a.probe.SetForcedOffline(a.opts.offline)

	a.logger.Debug("Client ready", "server", a.cfg.Server, "db", a.cfg.DBPath)
	return nil
}

// engine builds the remote adapter, the sync manager and the data service.
// Without a valid session the probe is forced offline and changes stay local.
func (a *App) engine(ctx context.Context) error {
	if a.manager != nil {
		return nil
	}

	opts := []remote.Option{remote.WithPollInterval(a.cfg.PollInterval)}

	a.session, a.sessionErr = a.auth.Session(ctx)
	if a.sessionErr == nil {
		a.client.SetToken(a.session.AccessToken)

		cipher, err := crypto.NewFieldCipher(a.session.FieldKey)
		if err != nil {
			return fmt.Errorf("failed to create field cipher: %w", err)
		}
		deviceID, err := a.store.DeviceID(ctx)
		if err != nil {
			return fmt.Errorf("failed to load device id: %w", err)
		}
		opts = append(opts,
			remote.WithCipher(cipher),
			remote.WithUserID(a.session.UserID),
			remote.WithChangeVectors(changevector.New(deviceID, nil)),
		)
	} else {
		if !errors.Is(a.sessionErr, auth.ErrNotLoggedIn) && !errors.Is(a.sessionErr, auth.ErrSessionExpired) {
			return a.sessionErr
		}
		a.probe.SetForcedOffline(true)
	}

	a.adapter = remote.NewAdapter(a.client, a.probe, a.logger, opts...)

	manager, err := sync.NewManager(ctx, sync.Config{
		Remote:      a.adapter,
		Collections: a.collections,
		Metadata:    a.store,
		Checker:     a.probe,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start sync manager: %w", err)
	}
	a.manager = manager
	a.client.SetCompression(manager.Settings().CompressSync)
	a.data = data.NewService(a.collections, manager, a.logger)
	return nil
}

// requireSession builds the engine and fails when the user is not logged in.
func (a *App) requireSession(ctx context.Context) error {
	if err := a.engine(ctx); err != nil {
		return err
	}
	if a.sessionErr != nil {
		return fmt.Errorf("%w, run 'worldkeeper login' first", a.sessionErr)
	}
	if a.opts.offline {
		return fmt.Errorf("%w: --offline is set", remote.ErrOffline)
	}
	return nil
}

// Close releases everything opened by the invocation.
func (a *App) Close() error {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.adapter != nil {
		a.adapter.UnsubscribeAll()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, cio iocli.IO, logOut io.Writer, version string, args []string) int {
	app := New(cio, logOut)
	defer func() {
		if err := app.Close(); err != nil {
			_, _ = fmt.Fprintf(logOut, "Error: %v\n", err)
		}
	}()

	root := app.Command(version)
	root.SetArgs(args)
	root.SetOut(cio)
	root.SetErr(logOut)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(logOut, "Error: %v\n", err)
		return 1
	}
	return 0
}
