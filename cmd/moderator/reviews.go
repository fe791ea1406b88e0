package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/conf"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/data"
)

func reviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Inspect and maintain stored reviews",
	}
	cmd.AddCommand(reviewsListCmd())
	cmd.AddCommand(reviewsPurgeCmd())
	return cmd
}

func reviewsListCmd() *cobra.Command {
	var (
		resolved bool
		since    time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or recently resolved) reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf.LoadFromEnv()
			setupLogger(cfg.Log)

			store, err := data.NewReviewRepo(cfg.Store.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			var reviews []*domain.PendingReview
			if resolved {
				reviews, err = store.ListResolved(ctx, time.Now().Add(-since), limit)
			} else {
				reviews, err = store.ListPending(ctx)
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCHAT\tSTATE\tACTION\tTARGET\tCREATED")
			for _, r := range reviews {
				action, target := "-", "-"
				if m := r.Decision.Moderation; m != nil {
					action = string(m.Action)
					target = fmt.Sprint(m.TargetUserID)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					r.ReviewID, r.ConversationID, r.State, action, target, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&resolved, "resolved", false, "list resolved reviews instead of pending ones")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "with --resolved, how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 50, "with --resolved, maximum number of rows")
	return cmd
}

func reviewsPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete resolved reviews older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf.LoadFromEnv()
			setupLogger(cfg.Log)
			if olderThan <= 0 {
				olderThan = cfg.Review.Retention
			}

			store, err := data.NewReviewRepo(cfg.Store.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.DeleteResolvedBefore(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d reviews\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (default REVIEW_RETENTION_HOURS)")
	return cmd
}
