package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/worldkeeper/internal/models"
)

func (a *App) watchCommand() *cobra.Command {
	var docID string

	cmd := &cobra.Command{
		Use:   "watch <type>",
		Short: "Print live changes of a collection on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			changes := make(chan models.Change, 64)
			deliver := func(ch models.Change) {
				select {
				case changes <- ch:
				case <-ctx.Done():
				}
			}

			if docID != "" {
				_, err = a.adapter.SubscribeToDocument(ctx, string(entityType), docID, deliver)
			} else {
				_, err = a.adapter.SubscribeToCollection(ctx, string(entityType), deliver)
			}
			if err != nil {
				return err
			}
			a.logger.Info("Watching collection", "collection", entityType)

			for {
				select {
				case <-ctx.Done():
					return nil
				case ch := <-changes:
					a.printChange(entityType, ch)
				}
			}
		},
	}
	cmd.Flags().StringVar(&docID, "id", "", "watch a single document")
	return cmd
}

func (a *App) printChange(entityType models.EntityType, ch models.Change) {
	ts := time.Now().Format(time.TimeOnly)
	if ch.Deleted || ch.Document == nil {
		a.io.Printf("%s deleted %s/%s\n", ts, entityType, ch.ID)
		return
	}
	name := displayName(ch.Document.Entity)
	a.io.Printf("%s changed %s/%s v%d %s\n", ts, entityType, ch.ID, ch.Document.Sync.Version, name)
}

func (a *App) uploadCommand() *cobra.Command {
	var attach, field string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an attachment or voice recording",
		Example: `  worldkeeper upload theme.ogg --attach characters/<id> --field voiceUrl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				entityType models.EntityType
				entityID   string
			)
			if attach != "" {
				var err error
				if entityType, entityID, err = parseConflictRef(attach); err != nil {
					return err
				}
			}
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			name := filepath.Base(args[0])
			url, err := a.adapter.UploadBlob(ctx, name, mime.TypeByExtension(filepath.Ext(name)), f)
			if err != nil {
				return err
			}
			a.io.Printf("Uploaded %s: %s\n", name, url)

			if entityID == "" {
				return nil
			}
			partial := models.Entity{models.FieldID: entityID, field: url}
			if _, err := a.data.Update(ctx, entityType, partial); err != nil {
				return fmt.Errorf("uploaded but failed to attach: %w", err)
			}
			a.io.Printf("Attached to %s as %s\n", attach, field)
			return nil
		},
	}
	cmd.Flags().StringVar(&attach, "attach", "", "entity to attach the URL to, as type/id")
	cmd.Flags().StringVar(&field, "field", "attachmentUrl", "field receiving the URL")
	return cmd
}

func (a *App) daemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep syncing in the background until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			settings := a.manager.Settings()
			if !settings.Enabled {
				return fmt.Errorf("sync is disabled, enable it with 'worldkeeper settings enabled true'")
			}

			token := a.manager.AddStatusListener(func(s models.SyncStatus) {
				a.logger.Info("Sync status",
					"online", s.IsOnline,
					"syncing", s.IsSyncing,
					"pending", s.PendingChanges,
					"conflicts", s.ConflictsCount)
			})
			defer a.manager.RemoveStatusListener(token)

			if err := a.manager.SyncAll(ctx); err != nil {
				a.logger.Warn("Initial sync failed", "error", err)
			}
			if settings.AutoSync {
				if err := a.manager.StartAutoSync(); err != nil {
					return err
				}
			}

			// переподключение: проверяем сеть чаще, чем идёт синхронизация
			ticker := time.NewTicker(a.cfg.PollInterval)
			defer ticker.Stop()

			a.io.Printf("Syncing every %d min, press Ctrl+C to stop.\n", settings.SyncInterval)
			for {
				select {
				case <-ctx.Done():
					a.io.Println("Stopped.")
					return nil
				case <-ticker.C:
					a.manager.CheckConnectivity(ctx)
				}
			}
		},
	}
}
