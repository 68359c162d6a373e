package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/parking-engine/api"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
	"github.com/warp/parking-engine/store/sqlite"
)

type globalFlags struct {
	dbPath   string
	timezone string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "parkingctl",
		Short:         "Quote, book and seed parking reservations against a local database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dbPath, "db", envOr("SQLITE_PATH", "parking.db"), "SQLite database path")
	root.PersistentFlags().StringVar(&g.timezone, "tz", envOr("PARKING_TIMEZONE", "UTC"), "timezone days are keyed in")

	root.AddCommand(newScenariosCmd())
	root.AddCommand(newSeedCmd(g))
	root.AddCommand(newQuoteCmd(g, false))
	root.AddCommand(newQuoteCmd(g, true))
	root.AddCommand(newCancelCmd(g))
	root.AddCommand(newAvailabilityCmd(g))
	return root
}

// =============================================================================
// COMMANDS
// =============================================================================

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(api.Scenarios())
		},
	}
}

func newSeedCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <scenario>",
		Short: "Reset the database and load a demo scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, engine, err := g.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := api.Seed(cmd.Context(), store, engine, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "loaded scenario %s into %s\n", args[0], g.dbPath)
			return nil
		},
	}
}

func newQuoteCmd(g *globalFlags, commit bool) *cobra.Command {
	var (
		resourceID string
		checkIn    string
		checkOut   string
		vehicles   int
		phone      string
		voucher    string
	)

	use, short := "quote", "Resolve availability and price for a window"
	if commit {
		use, short = "book", "Book a window if every day is available"
	}

	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, engine, err := g.open()
			if err != nil {
				return err
			}
			defer store.Close()

			in, err := parseInstant(checkIn, engine.Location)
			if err != nil {
				return fmt.Errorf("invalid --in: %w", err)
			}
			out, err := parseInstant(checkOut, engine.Location)
			if err != nil {
				return fmt.Errorf("invalid --out: %w", err)
			}
			req := booking.Request{
				ResourceID:   booking.ResourceID(resourceID),
				Window:       booking.Window{CheckIn: in, CheckOut: out},
				VehicleCount: vehicles,
				Phone:        phone,
				VoucherCode:  voucher,
			}

			if !commit {
				res, err := engine.Resolve(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(api.ToQuoteResponse(res))
			}

			b, err := engine.Book(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(api.BookResponse{
				Reservation: api.ToReservationDTO(b.Reservation),
				Quote:       api.ToQuoteResponse(b.Resolution),
			})
		},
	}

	c.Flags().StringVarP(&resourceID, "resource", "r", "", "parking resource id")
	c.Flags().StringVar(&checkIn, "in", "", "check-in (RFC3339, 'YYYY-MM-DD HH:MM' or YYYY-MM-DD)")
	c.Flags().StringVar(&checkOut, "out", "", "check-out (same formats as --in)")
	c.Flags().IntVarP(&vehicles, "vehicles", "n", 1, "number of vehicles")
	c.Flags().StringVar(&phone, "phone", "", "customer phone for VIP lookup")
	c.Flags().StringVar(&voucher, "voucher", "", "voucher code")
	_ = c.MarkFlagRequired("resource")
	_ = c.MarkFlagRequired("in")
	_ = c.MarkFlagRequired("out")
	return c
}

func newCancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id|code>",
		Short: "Cancel a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, engine, err := g.open()
			if err != nil {
				return err
			}
			defer store.Close()

			// Accept the short code too; Cancel wants the id
			r, err := store.Reservation(cmd.Context(), booking.ReservationID(args[0]))
			if err != nil {
				return err
			}
			if err := engine.Cancel(cmd.Context(), r.ID); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "cancelled %s (%s)\n", r.Code, r.ID)
			return nil
		},
	}
}

func newAvailabilityCmd(g *globalFlags) *cobra.Command {
	var (
		resourceID string
		from       string
		to         string
		vehicles   int
	)

	c := &cobra.Command{
		Use:   "availability",
		Short: "Show day-by-day occupancy for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := calendar.ParseDate(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end, err := calendar.ParseDate(to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			store, engine, err := g.open()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := engine.Availability(cmd.Context(), booking.ResourceID(resourceID), calendar.Period{Start: start, End: end}, vehicles)
			if err != nil {
				return err
			}
			return printJSON(api.ToAvailabilityDTO(res))
		},
	}

	c.Flags().StringVarP(&resourceID, "resource", "r", "", "parking resource id")
	c.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	c.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	c.Flags().IntVarP(&vehicles, "vehicles", "n", 1, "number of vehicles")
	_ = c.MarkFlagRequired("resource")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	return c
}

// =============================================================================
// HELPERS
// =============================================================================

// open wires an engine with the SQLite store behind every collaborator.
func (g *globalFlags) open() (*sqlite.Store, *booking.Engine, error) {
	loc, err := calendar.ParseLocation(g.timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --tz: %w", err)
	}
	store, err := sqlite.New(g.dbPath)
	if err != nil {
		return nil, nil, err
	}
	engine := &booking.Engine{
		Catalog:     store,
		Capacity:    store,
		Settings:    store,
		Maintenance: store,
		Customers:   store,
		Vouchers:    store,
		Location:    loc,
	}
	return store, engine, nil
}

var instantLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
