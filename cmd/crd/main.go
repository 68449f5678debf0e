package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cl "crudeidle/internal/cli"
	"crudeidle/internal/config"
	"crudeidle/internal/game"
	"crudeidle/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "crd",
		Short:        "Crude idle oil game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL (CRD_API_BASE_URL)")

	root.AddCommand(
		newBalanceCmd(&apiBase),
		newPlatformsCmd(&apiBase),
		newItemsCmd(&apiBase),
		newLedgerCmd(&apiBase),
		newSummaryCmd(&apiBase),
		newCatalogCmd(&apiBase),
		newSyncCmd(&apiBase),
		newWatchCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newBalanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "balance",
		Short:   "Show balance and earnings per settlement period",
		Aliases: []string{"bal"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Balance(ctx)
			if err != nil {
				return err
			}
			renderBalance(out)
			return nil
		},
	}
}

func newPlatformsCmd(apiBase *string) *cobra.Command {
	platforms := &cobra.Command{
		Use:     "platforms",
		Short:   "List and build oil platforms",
		Aliases: []string{"platform", "p"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			list, err := client.Platforms(ctx)
			if err != nil {
				return err
			}
			maxLevel := game.MaxPlatformLevel
			if c, err := client.Catalog(ctx); err == nil {
				maxLevel = c.MaxLevel
			}
			renderPlatforms(list, maxLevel)
			return nil
		},
	}

	platforms.AddCommand(&cobra.Command{
		Use:   "create [Rig|Ground|Pump]",
		Short: "Build a new platform",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind string
			if len(args) > 0 {
				kind = args[0]
			} else {
				choice, err := promptChoice("Platform type", kindNames(), string(game.KindRig))
				if err != nil {
					return err
				}
				kind = choice
			}
			parsed, err := game.ParsePlatformKind(kind)
			if err != nil {
				return err
			}

			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreatePlatform(ctx, string(parsed), idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Action:         game.ActionCreatePlatform,
					PlatformType:   string(parsed),
					IdempotencyKey: idem,
				})
			}
			renderMutation(out, "Built")
			return nil
		},
	})

	platforms.AddCommand(&cobra.Command{
		Use:   "upgrade <id>",
		Short: "Upgrade a platform one level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			id, err := resolveID(args[0], func() ([]uuid.UUID, error) {
				list, err := client.Platforms(ctx)
				if err != nil {
					return nil, err
				}
				ids := make([]uuid.UUID, 0, len(list))
				for _, p := range list {
					ids = append(ids, p.ID)
				}
				return ids, nil
			})
			if err != nil {
				return err
			}

			idem := uuid.NewString()
			out, err := client.UpgradePlatform(ctx, id, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Action:         game.ActionUpgradePlatform,
					ResourceID:     id.String(),
					IdempotencyKey: idem,
				})
			}
			renderMutation(out, "Upgraded")
			return nil
		},
	})
	return platforms
}

func newItemsCmd(apiBase *string) *cobra.Command {
	items := &cobra.Command{
		Use:     "items",
		Short:   "List and buy items",
		Aliases: []string{"item", "shop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			list, err := newClient(apiBase).Items(ctx)
			if err != nil {
				return err
			}
			renderItems(list)
			return nil
		},
	}

	items.AddCommand(&cobra.Command{
		Use:   "buy <id>",
		Short: "Buy an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			id, err := resolveID(args[0], func() ([]uuid.UUID, error) {
				list, err := client.Items(ctx)
				if err != nil {
					return nil, err
				}
				ids := make([]uuid.UUID, 0, len(list))
				for _, it := range list {
					ids = append(ids, it.ID)
				}
				return ids, nil
			})
			if err != nil {
				return err
			}

			idem := uuid.NewString()
			out, err := client.PurchaseItem(ctx, id, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Action:         game.ActionPurchaseItem,
					ResourceID:     id.String(),
					IdempotencyKey: idem,
				})
			}
			renderMutation(out, "Bought")
			return nil
		},
	})
	return items
}

func newLedgerCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			entries, err := newClient(apiBase).Ledger(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			renderLedger(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show only the last n entries (0 for all)")
	return cmd
}

func newSummaryCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "summary",
		Short:   "Show earned, spent and item progress",
		Aliases: []string{"win"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Summary(ctx)
			if err != nil {
				return err
			}
			renderSummary(out)
			return nil
		},
	}
}

func newCatalogCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show platform prices and yields",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Catalog(ctx)
			if err != nil {
				return err
			}
			renderCatalog(out)
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			// batches that landed before an error are still settled
			results, syncErr := newClient(apiBase).SyncReplay(ctx, queue)
			if syncErr != nil && len(results) == 0 {
				return syncErr
			}

			remaining, replayed := settleQueue(queue, results)
			for _, r := range results {
				if r.Status != http.StatusOK {
					printError(fmt.Sprintf("Sync %s: %s", r.IdempotencyKey, r.Error))
				}
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			if syncErr != nil {
				return fmt.Errorf("sync stopped after %d results (remaining=%d): %w", len(results), len(remaining), syncErr)
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// settleQueue drops commands the server has ruled on. Only conflicts
// (409 from a tx conflict) and missing results stay queued; a 409 for a
// duplicate key means an earlier attempt already landed.
func settleQueue(queue []syncq.Command, results []cl.ReplayResult) ([]syncq.Command, int) {
	byKey := make(map[string]cl.ReplayResult, len(results))
	for _, r := range results {
		byKey[r.IdempotencyKey] = r
	}
	remaining := make([]syncq.Command, 0)
	replayed := 0
	for _, q := range queue {
		r, ok := byKey[q.IdempotencyKey]
		switch {
		case !ok:
			remaining = append(remaining, q)
		case r.Status == http.StatusOK:
			replayed++
		case r.Status == http.StatusConflict && !strings.Contains(r.Error, game.ErrDuplicateIdempotency.Error()):
			remaining = append(remaining, q)
		case r.Status >= http.StatusInternalServerError:
			remaining = append(remaining, q)
		}
	}
	return remaining, replayed
}

func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("Server unreachable (%v). Queued %s; run `crd sync` later.", err, cmd.Action))
	return nil
}

// resolveID accepts a full id or a unique prefix of one of the ids list
// returns.
func resolveID(arg string, list func() ([]uuid.UUID, error)) (uuid.UUID, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if id, err := uuid.Parse(arg); err == nil {
		return id, nil
	}
	if arg == "" {
		return uuid.Nil, fmt.Errorf("id is required")
	}
	ids, err := list()
	if err != nil {
		return uuid.Nil, err
	}
	var match uuid.UUID
	found := 0
	for _, id := range ids {
		if strings.HasPrefix(id.String(), arg) {
			match = id
			found++
		}
	}
	switch found {
	case 0:
		return uuid.Nil, fmt.Errorf("no id starts with %q", arg)
	case 1:
		return match, nil
	default:
		return uuid.Nil, fmt.Errorf("%q matches %d ids", arg, found)
	}
}

func kindNames() []string {
	out := make([]string, 0, len(game.PlatformKinds))
	for _, k := range game.PlatformKinds {
		out = append(out, string(k))
	}
	return out
}
