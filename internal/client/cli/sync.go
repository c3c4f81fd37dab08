package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/models"
)

func (a *App) syncCommand() *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local data with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if !a.manager.Settings().Enabled {
				a.io.Println("Sync is disabled. Enable it with 'worldkeeper settings enabled true'.")
				return nil
			}

			var err error
			if typeName != "" {
				entityType, perr := parseEntityType(typeName)
				if perr != nil {
					return perr
				}
				if !a.manager.CheckConnectivity(ctx) {
					return remote.ErrOffline
				}
				a.io.Printf("Syncing %s...\n", entityType)
				err = a.manager.SyncEntityType(ctx, entityType)
			} else {
				a.io.Println("Syncing...")
				err = a.manager.SyncAll(ctx)
			}

			status := a.manager.Status()
			a.io.Printf("Pending: %d, conflicts: %d, last sync: %s\n",
				status.PendingChanges, status.ConflictsCount, formatTime(status.LastSyncTime))
			if status.ConflictsCount > 0 {
				a.io.Println("Run 'worldkeeper conflicts' to review them.")
			}
			if err != nil {
				return fmt.Errorf("sync finished with errors: %w", err)
			}
			a.io.Println("Sync completed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "sync a single entity type")
	return cmd
}

func (a *App) queueCommand() *cobra.Command {
	var clearQueue, drain bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show, deliver or drop changes waiting for the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch {
			case clearQueue && drain:
				return errors.New("--clear and --drain are mutually exclusive")
			case clearQueue:
				if err := a.engine(ctx); err != nil {
					return err
				}
				n := len(a.manager.PendingOperations())
				if err := a.manager.ClearPendingOperations(ctx); err != nil {
					return err
				}
				a.io.Printf("Dropped %d queued operations.\n", n)
				return nil
			case drain:
				if err := a.requireSession(ctx); err != nil {
					return err
				}
				if !a.manager.CheckConnectivity(ctx) {
					return remote.ErrOffline
				}
				result, err := a.manager.ProcessPendingOperations(ctx)
				if err != nil {
					return err
				}
				a.io.Printf("Delivered %d, failed %d, remaining %d.\n", result.Processed, result.Failed, result.Remaining)
				return nil
			}

			if err := a.engine(ctx); err != nil {
				return err
			}
			ops := a.manager.PendingOperations()
			if len(ops) == 0 {
				a.io.Println("No queued operations.")
				return nil
			}

			w := tabwriter.NewWriter(a.io, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "QUEUED\tOP\tTYPE\tID")
			for _, op := range ops {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					op.Timestamp.Local().Format(time.DateTime), op.Type, op.EntityType, op.Data.ID())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&clearQueue, "clear", false, "drop every queued operation")
	cmd.Flags().BoolVar(&drain, "drain", false, "deliver queued operations now")
	return cmd
}

// conflictRef is the "type/id" reference shown to the user.
func conflictRef(c models.SyncConflict) string {
	return string(c.EntityType) + "/" + c.Local.ID()
}

func parseConflictRef(ref string) (models.EntityType, string, error) {
	typeName, id, ok := strings.Cut(ref, "/")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid conflict reference %q, expected type/id", ref)
	}
	entityType, err := parseEntityType(typeName)
	if err != nil {
		return "", "", err
	}
	return entityType, id, nil
}

func (a *App) conflictsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Sync and list conflicts waiting for a decision",
		Long: `Conflicts are detected during a sync pass. With the "ask" policy they stay
pending until resolved with 'worldkeeper resolve <type/id> <strategy>'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.manager.SyncAll(ctx); err != nil {
				a.logger.Warn("Sync pass finished with errors", "error", err)
			}

			conflicts := a.manager.GetConflicts()
			if len(conflicts) == 0 {
				a.io.Println("No conflicts.")
				return nil
			}

			w := tabwriter.NewWriter(a.io, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "REF\tLOCAL UPDATED\tREMOTE UPDATED\tSUGGESTED\tCONFIDENCE")
			for _, c := range conflicts {
				suggested, confidence := "-", "-"
				if c.Resolution != nil {
					suggested = strings.Join(c.Resolution.Metadata.MergedFields, ",")
					confidence = strconv.FormatFloat(c.Resolution.Metadata.Confidence, 'f', 2, 64)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					conflictRef(c),
					updatedText(c.Local),
					updatedText(c.Remote),
					dash(suggested),
					confidence)
			}
			return w.Flush()
		},
	}
}

func updatedText(d *models.Document) string {
	if d == nil {
		return "deleted"
	}
	ts := d.Entity.UpdatedAt()
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}

func (a *App) resolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <type/id> <strategy>",
		Short: "Resolve a conflict with local-wins, remote-wins, merge or manual",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, id, err := parseConflictRef(args[0])
			if err != nil {
				return err
			}
			strategy := models.Strategy(args[1])
			if !strategy.Valid() {
				return fmt.Errorf("unknown strategy %q", args[1])
			}
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if !a.manager.CheckConnectivity(ctx) {
				return remote.ErrOffline
			}

			// конфликты живут в памяти процесса: находим их заново
			if err := a.manager.SyncEntityType(ctx, entityType); err != nil {
				a.logger.Warn("Sync pass finished with errors", "entity_type", entityType, "error", err)
			}

			var conflictID string
			for _, c := range a.manager.GetConflicts() {
				if c.EntityType == entityType && c.Local.ID() == id {
					conflictID = c.ID
					break
				}
			}
			if conflictID == "" {
				return fmt.Errorf("no pending conflict for %s", args[0])
			}

			resolution, err := a.manager.ResolveConflictWithStrategy(ctx, conflictID, strategy)
			if err != nil {
				return err
			}

			if strategy == models.StrategyManual {
				a.io.Println("Suggested document for manual review:")
				if err := a.printEntity(resolution.Document.Entity); err != nil {
					return err
				}
				a.io.Println("Apply it with 'worldkeeper update' and resolve with local-wins.")
				return nil
			}

			a.io.Printf("Resolved %s with %s (confidence %.2f)\n",
				args[0], resolution.Strategy, resolution.Metadata.Confidence)
			return nil
		},
	}
}

// settingKeys перечисляет изменяемые настройки синхронизации
var settingKeys = []string{"enabled", "auto-sync", "interval", "conflict-resolution", "max-offline-changes", "compress"}

func applySetting(s *models.SyncSettings, key, value string) error {
	var err error
	switch key {
	case "enabled":
		s.Enabled, err = strconv.ParseBool(value)
	case "auto-sync":
		s.AutoSync, err = strconv.ParseBool(value)
	case "interval":
		s.SyncInterval, err = strconv.Atoi(value)
	case "max-offline-changes":
		s.MaxOfflineChanges, err = strconv.Atoi(value)
	case "compress":
		s.CompressSync, err = strconv.ParseBool(value)
	case "conflict-resolution":
		policy := models.ConflictPolicy(value)
		if !policy.Valid() {
			return fmt.Errorf("unknown conflict policy %q", value)
		}
		s.ConflictResolution = policy
	default:
		return fmt.Errorf("unknown setting %q, expected one of %s", key, strings.Join(settingKeys, ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func (a *App) settingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settings [key value]",
		Short: "Show or change sync settings",
		Long:  "Settings: " + strings.Join(settingKeys, ", "),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New("expected no arguments or a key and a value")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.engine(ctx); err != nil {
				return err
			}

			if len(args) == 0 {
				s := a.manager.Settings()
				w := tabwriter.NewWriter(a.io, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintf(w, "enabled\t%t\n", s.Enabled)
				_, _ = fmt.Fprintf(w, "auto-sync\t%t\n", s.AutoSync)
				_, _ = fmt.Fprintf(w, "interval\t%d\n", s.SyncInterval)
				_, _ = fmt.Fprintf(w, "conflict-resolution\t%s\n", s.ConflictResolution)
				_, _ = fmt.Fprintf(w, "max-offline-changes\t%d\n", s.MaxOfflineChanges)
				_, _ = fmt.Fprintf(w, "compress\t%t\n", s.CompressSync)
				return w.Flush()
			}

			settings := a.manager.Settings()
			if err := applySetting(&settings, args[0], args[1]); err != nil {
				return err
			}

			if args[0] == "enabled" {
				if !settings.Enabled {
					if err := a.manager.DisableSync(ctx); err != nil {
						return err
					}
					a.io.Println("Sync disabled.")
					return nil
				}
				// включение синхронизации сразу запускает проход
				err := a.manager.EnableSync(ctx)
				if !a.manager.Settings().Enabled {
					return err
				}
				a.io.Println("Sync enabled.")
				if err != nil {
					a.io.Printf("Warning: initial sync failed: %v\n", err)
				}
				return nil
			}

			if err := a.manager.UpdateSettings(ctx, settings); err != nil {
				return err
			}
			a.client.SetCompression(settings.CompressSync)
			a.io.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func (a *App) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upload every local entity to the server in one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			n, err := a.manager.MigrateLocalData(ctx)
			if err != nil {
				return err
			}
			a.io.Printf("Uploaded %d entities.\n", n)
			return nil
		},
	}
}
