package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/worldkeeper/internal/client/auth"
)

func (a *App) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write the effective configuration to the config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath()
			if err := a.cfg.Save(path); err != nil {
				return err
			}
			a.io.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
}

func (a *App) registerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register [username]",
		Short: "Create an account on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := a.readUsername(args)
			if err != nil {
				return err
			}
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}

			result, err := a.auth.Register(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			a.io.Printf("Registered %s (user id %s)\n", result.Username, result.UserID)
			a.io.Println("Run 'worldkeeper login' to start syncing.")
			return nil
		},
	}
}

func (a *App) loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Log in and store the session on this device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := a.readUsername(args)
			if err != nil {
				return err
			}
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}

			session, err := a.auth.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			a.io.Printf("Logged in as %s, session valid until %s\n",
				session.Username, session.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func (a *App) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.auth.Logout(cmd.Context())
			if errors.Is(err, auth.ErrNotLoggedIn) {
				a.io.Println("Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}
			a.io.Println("Logged out. Local data is kept on this device.")
			return nil
		},
	}
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and synchronization status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.engine(ctx); err != nil {
				return err
			}

			a.io.Printf("Server:    %s\n", a.cfg.Server)
			switch {
			case a.sessionErr == nil:
				a.io.Printf("Account:   %s (until %s)\n",
					a.session.Username, a.session.ExpiresAt.Local().Format(time.DateTime))
			case errors.Is(a.sessionErr, auth.ErrSessionExpired):
				a.io.Println("Account:   session expired")
			default:
				a.io.Println("Account:   not logged in")
			}

			online := a.manager.CheckConnectivity(ctx)
			status := a.manager.Status()
			settings := a.manager.Settings()

			a.io.Printf("Online:    %s\n", yesNo(online))
			a.io.Printf("Sync:      %s (policy %s, every %d min)\n",
				enabledText(status.SyncEnabled), settings.ConflictResolution, settings.SyncInterval)
			a.io.Printf("Pending:   %d\n", status.PendingChanges)
			a.io.Printf("Conflicts: %d\n", status.ConflictsCount)
			a.io.Printf("Last sync: %s\n", formatTime(status.LastSyncTime))
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func enabledText(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

// sessionWarning предупреждает, что изменение не уйдёт на сервер
func (a *App) sessionWarning() {
	if a.sessionErr != nil && a.manager.Settings().Enabled {
		a.io.Printf("Warning: %v. The change is saved locally and queued.\n", a.sessionErr)
	}
}
