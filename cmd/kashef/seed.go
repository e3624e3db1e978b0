package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nvakili/kashef/api/store"
	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/shared/id"
)

// seedCmd loads offers from a JSON file into PostgreSQL.
func seedCmd() *cobra.Command {
	var demo bool

	cmd := &cobra.Command{
		Use:   "seed [offers.json]",
		Short: "Load offers into the catalogue",
		Long: `Load offers into the PostgreSQL catalogue from a JSON file.

The file holds an array of offers. Offers without an id are assigned one.
All rows are written in a single transaction. Pass --demo to load the
built-in demo catalogue instead of a file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var offers []discovery.Offer
			switch {
			case demo:
				offers = demoOffers()
			case len(args) == 1:
				loaded, err := readOffersFile(args[0])
				if err != nil {
					return err
				}
				offers = loaded
			default:
				return fmt.Errorf("pass an offers file or --demo")
			}

			pool, err := pgxpool.New(ctx, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("create database pool: %w", err)
			}
			defer pool.Close()

			st := store.New(pool)
			if err := st.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}

			err = st.WithTx(ctx, func(ctx context.Context) error {
				for i := range offers {
					if offers[i].ID == "" {
						offers[i].ID = id.NewOffer()
					}
					if err := st.UpsertOffer(ctx, offers[i]); err != nil {
						return fmt.Errorf("upsert offer %s: %w", offers[i].ID, err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			total, err := st.CountOffers(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d offers (%d total in catalogue)\n", len(offers), total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "load the built-in demo catalogue")
	return cmd
}
