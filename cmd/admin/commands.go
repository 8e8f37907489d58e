package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"post-digest/config"
	"post-digest/db"
	"post-digest/eventbus"
	"post-digest/repositories"
	"post-digest/services"
)

// newRootCmd 는 운영용 하위 명령을 모은 루트 명령을 만든다.
// DB 연결은 각 명령의 RunE 안에서만 연다.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operator commands for the post digest pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newActivateCmd(true),
		newActivateCmd(false),
		newSourcesCmd(),
		newReconcileCmd(),
		newCooldownsCmd(),
		newItemCmd(),
	)
	return root
}

// withPool 은 마이그레이션 없이 풀만 열고 fn 이 끝나면 닫는다.
func withPool(ctx context.Context, fn func(*pgxpool.Pool) error) error {
	pool, err := db.Open(ctx, config.GetConfig().Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if err := db.Migrate(cmd.Context(), pool); err != nil {
					return err
				}
				versions, err := db.AppliedMigrations(cmd.Context(), pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied migrations: %v\n", versions)
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register sources listed in the seed file (new sources start inactive)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = config.GetConfig().SourcesFile
			}
			path = config.ResolvePath(path)
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				created, total, err := repositories.NewSourceRepository(pool).SeedFromFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new of %d sources from %s\n", created, total, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "source seed file (default: sources_file in config.yaml)")
	return cmd
}

func newActivateCmd(active bool) *cobra.Command {
	use, verb := "activate", "Activate"
	if !active {
		use, verb = "deactivate", "Deactivate"
	}
	return &cobra.Command{
		Use:   use + " <code>",
		Short: verb + " a source by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				err := repositories.NewSourceRepository(pool).SetActive(cmd.Context(), code, active)
				if errors.Is(err, repositories.ErrSourceNotFound) {
					return fmt.Errorf("source %q not found", code)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "source %s is_active=%t\n", code, active)
				return nil
			})
		},
	}
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				sources, err := repositories.NewSourceRepository(pool).List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCODE\tFAMILY\tACTIVE\tNAME")
				for _, s := range sources {
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", s.ID, s.Code, s.Family(), s.IsActive, s.Name)
				}
				return w.Flush()
			})
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var (
		grace int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Republish items that were stored but never summarized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig()
			if grace < 0 {
				grace = cfg.Reconcile.GraceMinutes
			}
			if limit < 0 {
				limit = cfg.Reconcile.Limit
			}

			broker, err := eventbus.New(cfg.Broker)
			if err != nil {
				return fmt.Errorf("failed to create broker: %w", err)
			}
			defer broker.Close()

			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				svc := services.NewReconcileService(
					repositories.NewItemRepository(pool),
					repositories.NewSourceRepository(pool),
					services.NewPublisher(broker),
					cfg.Queues,
				)
				report, err := svc.Run(cmd.Context(), time.Duration(grace)*time.Minute, limit)
				fmt.Fprintf(cmd.OutOrStdout(), "found=%d published=%d skipped=%d\n", report.Found, report.Published, report.Skipped)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&grace, "grace", -1, "minutes an item may stay unsummarized (default: reconcile.grace_minutes)")
	cmd.Flags().IntVar(&limit, "limit", -1, "max items to republish, 0 = unlimited (default: reconcile.limit)")
	return cmd
}

func newCooldownsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cooldowns",
		Short: "List shared model cooldowns (cooldown_store=postgres)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				rows, err := repositories.NewCooldownRepository(pool).List(cmd.Context())
				if err != nil {
					return err
				}
				return printCooldowns(cmd.OutOrStdout(), rows, time.Now())
			})
		},
	}
}

func newItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "item <id>",
		Short: "Show an item with its assets, comments and summaries as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			ctx := cmd.Context()
			return withPool(ctx, func(pool *pgxpool.Pool) error {
				item, err := repositories.NewItemRepository(pool).FindByID(ctx, id)
				if err != nil {
					return err
				}
				report := itemReport{Item: *item}
				if report.Assets, err = repositories.NewAssetRepository(pool).ListAssets(ctx, id); err != nil {
					return err
				}
				if report.Comments, err = repositories.NewCommentRepository(pool).ListComments(ctx, id); err != nil {
					return err
				}
				if report.Summaries, err = repositories.NewSummaryRepository(pool).ListSummaries(ctx, id); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}
