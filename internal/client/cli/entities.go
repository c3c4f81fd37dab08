package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/validation"
)

// entityInput собирает поля сущности из флагов
type entityInput struct {
	sets    []string
	json    string
	file    string
	worldID string
}

func (in *entityInput) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&in.sets, "set", nil, "field assignment key=value, value parsed as JSON when possible (repeatable)")
	flags.StringVar(&in.json, "json", "", "fields as a JSON object")
	flags.StringVar(&in.file, "file", "", "read fields from a JSON file")
	flags.StringVar(&in.worldID, "world", "", "world the entity belongs to")
}

// entity merges --file, --json, --world and --set, later sources winning.
func (in *entityInput) entity() (models.Entity, error) {
	e := models.Entity{}

	if in.file != "" {
		raw, err := os.ReadFile(in.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in.file, err)
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", in.file, err)
		}
	}
	if in.json != "" {
		if err := json.Unmarshal([]byte(in.json), &e); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
	}
	if in.worldID != "" {
		e[models.FieldWorldID] = in.worldID
	}

	for _, set := range in.sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", set)
		}
		e[key] = parseValue(value)
	}
	return e, nil
}

// parseValue: 42, true, ["a"] и {"k":1} разбираются как JSON, остальное строка
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func parseEntityType(s string) (models.EntityType, error) {
	t := models.EntityType(s)
	if err := validation.ValidateEntityType(t); err != nil {
		return "", err
	}
	return t, nil
}

func entityTypesHelp() string {
	names := make([]string, len(models.SyncedEntityTypes))
	for i, t := range models.SyncedEntityTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func (a *App) printEntity(e models.Entity) error {
	out, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format entity: %w", err)
	}
	_, err = a.io.Write(append(out, '\n'))
	return err
}

func (a *App) addCommand() *cobra.Command {
	var in entityInput
	var id string

	cmd := &cobra.Command{
		Use:   "add <type>",
		Short: "Create an entity",
		Long:  "Create an entity of one of: " + entityTypesHelp(),
		Example: `  worldkeeper add worlds --set name=Eldoria
  worldkeeper add characters --world <world-id> --set name=Aria --set age=31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			e, err := in.entity()
			if err != nil {
				return err
			}
			if id != "" {
				e[models.FieldID] = id
			}

			if err := a.engine(ctx); err != nil {
				return err
			}
			created, err := a.data.Create(ctx, entityType, e)
			if err != nil {
				return err
			}

			a.io.Printf("Created %s/%s\n", entityType, created.ID())
			a.sessionWarning()
			return nil
		},
	}
	in.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "entity id (generated when empty)")
	return cmd
}

func (a *App) updateCommand() *cobra.Command {
	var in entityInput

	cmd := &cobra.Command{
		Use:   "update <type> <id>",
		Short: "Change fields of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			partial, err := in.entity()
			if err != nil {
				return err
			}
			if len(partial) == 0 {
				return fmt.Errorf("nothing to update, use --set, --json or --file")
			}
			partial[models.FieldID] = args[1]

			if err := a.engine(ctx); err != nil {
				return err
			}
			if _, err := a.data.Update(ctx, entityType, partial); err != nil {
				return err
			}

			a.io.Printf("Updated %s/%s\n", entityType, args[1])
			a.sessionWarning()
			return nil
		},
	}
	in.bind(cmd)
	return cmd
}

func (a *App) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Print an entity as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			if err := a.engine(ctx); err != nil {
				return err
			}

			e, err := a.data.Get(ctx, entityType, args[1])
			if err != nil {
				return err
			}
			return a.printEntity(e)
		},
	}
}

func (a *App) listCommand() *cobra.Command {
	var (
		worldID string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List entities stored on this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			if err := a.engine(ctx); err != nil {
				return err
			}

			entities, err := a.data.List(ctx, entityType, worldID)
			if err != nil {
				return err
			}
			sort.Slice(entities, func(i, j int) bool { return entities[i].ID() < entities[j].ID() })

			if asJSON {
				out, err := json.MarshalIndent(entities, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format entities: %w", err)
				}
				_, err = a.io.Write(append(out, '\n'))
				return err
			}

			if len(entities) == 0 {
				a.io.Printf("No %s found.\n", entityType)
				return nil
			}

			w := tabwriter.NewWriter(a.io, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tWORLD\tNAME\tUPDATED")
			for _, e := range entities {
				updated := "-"
				if ts := e.UpdatedAt(); !ts.IsZero() {
					updated = ts.Local().Format(time.DateTime)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID(), dash(e.WorldID()), dash(displayName(e)), updated)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			a.io.Printf("\nTotal: %d\n", len(entities))
			return nil
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "only entities of this world")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func (a *App) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			if err := a.engine(ctx); err != nil {
				return err
			}

			if err := a.data.Delete(ctx, entityType, args[1]); err != nil {
				return err
			}
			a.io.Printf("Deleted %s/%s\n", entityType, args[1])
			a.sessionWarning()
			return nil
		},
	}
}

// displayName возвращает name или title сущности
func displayName(e models.Entity) string {
	for _, field := range []string{"name", "title"} {
		if s, ok := e[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
