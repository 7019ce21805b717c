// Command recalc recalculates Elo ratings for all confirmed matches from
// scratch. Run after bug fixes or data corrections. With --dry-run it
// reports the before/after diff without saving anything.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	fxmodules "github.com/Eyedema/ttstats/internal/fx"
	"github.com/Eyedema/ttstats/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "show what would be done without making changes")
	flag.Parse()

	fx.New(
		fxmodules.Module,
		fx.Invoke(runRecalc(*dryRun)),
	).Run()
}

func runRecalc(dryRun bool) func(fx.Lifecycle, fx.Shutdowner, *service.RecalcService, *sql.DB, zerolog.Logger) {
	return func(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc *service.RecalcService, db *sql.DB, logger zerolog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if dryRun {
						fmt.Println("DRY RUN MODE - no changes will be saved")
					}

					summary, err := svc.Run(context.Background(), dryRun)
					if err != nil {
						logger.Error().Err(err).Msg("recalculation failed")
						shutdowner.Shutdown(fx.ExitCode(1))
						return
					}

					printSummary(summary)
					shutdowner.Shutdown()
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if err := db.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing database connection")
				}
				return nil
			},
		})
	}
}

func printSummary(summary *service.Summary) {
	verb := "Recalculated"
	if summary.DryRun {
		verb = "Would recalculate"
	}

	fmt.Printf("%s elo for %d matches (%d history records replaced)\n",
		verb, summary.Matches, summary.HistoryDeleted)

	for _, p := range summary.Players {
		fmt.Printf("  %s: %.1f -> %.1f (peak %.1f -> %.1f, %d -> %d rated matches)\n",
			p.Name, p.OldRating, p.NewRating, p.OldPeak, p.NewPeak, p.OldMatches, p.NewMatches)
	}
}
