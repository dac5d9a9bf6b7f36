package rankctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/pcarank/internal/adapters/repository"
	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/internal/ranking"
)

func (c *CLI) migrateCommand() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to the SQL store",
		Long: `Bring the configured SQL store to a schema version.

  --to -1 (default) migrates to the latest version
  --to 0            rolls every migration back
  --to N            migrates up or down to version N

The memory backend has no schema and is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend := repository.Backend(c.cfg.StoreBackend)
			if backend == repository.BackendMemory {
				return fmt.Errorf("%w: the memory store has no schema", repository.ErrUnsupportedBackend)
			}

			store, err := repository.OpenSQL(ctx, backend, c.cfg.StoreDSN,
				repository.WithLogger(c.log.Named("repository")),
				repository.WithAutoMigrate(false),
			)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			res, err := repository.Migrate(backend, store.DB(), target)
			if err != nil {
				return err
			}
			if !res.Changed {
				return printf(c.out, "%s schema already at version %d\n", warnColor.Sprint("unchanged"), res.To)
			}
			return printf(c.out, "%s schema %d -> %d\n", okColor.Sprint("migrated"), res.From, res.To)
		},
	}
	cmd.Flags().IntVar(&target, "to", -1, "target schema version")
	return cmd
}

func (c *CLI) datasetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect or switch the active dataset (A or B)",
	}

	show := func(ctx context.Context, svc *service.Service) error {
		st, err := svc.ActiveDataset(ctx)
		if err != nil {
			return err
		}
		return printf(c.out, "active %s, inactive %s\n", okColor.Sprint(st.Active), st.Inactive)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "active",
			Short: "Print the active and inactive dataset",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withService(cmd.Context(), show)
			},
		},
		&cobra.Command{
			Use:   "toggle",
			Short: "Swap the active dataset without importing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
					if _, err := svc.ToggleActiveDataset(ctx); err != nil {
						return err
					}
					if err := show(ctx, svc); err != nil {
						return err
					}
					return c.noteSwap()
				})
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create the registry row on an empty store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
					if _, err := svc.InitDataset(ctx); err != nil {
						return err
					}
					return show(ctx, svc)
				})
			},
		},
	)
	return cmd
}

func (c *CLI) cutoverCommand() *cobra.Command {
	var opts cutover.Options
	cmd := &cobra.Command{
		Use:   "cutover",
		Short: "Import the WCA export into the inactive dataset and swap",
		Long: `Run one cutover in the foreground: optionally download the export,
import it into the inactive dataset, validate and swap.

An export whose date matches the last import is skipped unless --force.
--test imports from the lite directory instead of the extracted export.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				rep, err := svc.RunCutover(ctx, opts)
				if err != nil {
					return err
				}
				if err := writeReport(c.out, &rep); err != nil {
					return err
				}
				if rep.Active == "" {
					return nil
				}
				return c.noteSwap()
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Download, "download", false, "fetch and extract the export first")
	cmd.Flags().BoolVar(&opts.TestMode, "test", false, "import the lite export")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "import even when the export was already imported")
	return cmd
}

func (c *CLI) rankingsCommand() *cobra.Command {
	var (
		events   []string
		rankType string
		area     string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "rankings <national|regional|local>",
		Short: "Print rankings for one or more events",
		Example: `  rankctl rankings national --event 333 --type single
  rankctl rankings regional --area NCR --event 333,444 --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := model.ParseAreaLevel(args[0])
			if err != nil {
				return err
			}
			types := model.RankTypes
			if rankType != "" {
				rt, err := model.ParseRankType(rankType)
				if err != nil {
					return err
				}
				types = []model.RankType{rt}
			}
			if len(events) == 0 {
				events = ranking.EventIDs()
			}

			return c.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				if limit == 0 {
					limit = svc.DefaultLimit()
				}
				for _, ev := range events {
					for _, rt := range types {
						q := model.RankingQuery{EventID: strings.TrimSpace(ev), RankType: rt, Level: level, Area: area, Limit: limit}
						rows, err := svc.GetRankings(ctx, q)
						if err != nil {
							return err
						}
						if err := writeRankingTable(c.out, string(rt)+" "+q.EventID, rows); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&events, "event", nil, "event ids (default all)")
	cmd.Flags().StringVar(&rankType, "type", "", "single or average (default both)")
	cmd.Flags().StringVar(&area, "area", "", "region or city/province below national level")
	cmd.Flags().IntVar(&limit, "limit", 0, "rows per ranking (default from config)")
	return cmd
}

func (c *CLI) recomputeCommand() *cobra.Command {
	var (
		area  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "recompute <national|regional|local>",
		Short: "Rebuild and cache every ranking of one area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := model.ParseAreaLevel(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				if err := svc.Recompute(ctx, level, area, limit); err != nil {
					return err
				}
				name := string(level)
				if area != "" {
					name += " " + area
				}
				return printf(c.out, "%s %s rankings\n", okColor.Sprint("recomputed"), name)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "region or city/province below national level")
	cmd.Flags().IntVar(&limit, "limit", 0, "rows per ranking (default from config)")
	return cmd
}

// noteSwap tells the operator when a running server will see a swap made
// here. With a process-local cache that is only after its registry entry
// expires; a shared cache sees the invalidation at once.
func (c *CLI) noteSwap() error {
	if c.cfg.CacheBackend != "memory" {
		return nil
	}
	if c.cfg.RegistryTTL == 0 {
		return printf(c.out, "%s running servers keep their cached dataset until restarted; set registry_ttl or a shared cache_backend\n",
			warnColor.Sprint("note:"))
	}
	return printf(c.out, "%s running servers switch datasets within %s\n", warnColor.Sprint("note:"), c.cfg.RegistryTTL)
}
