/*
parkingctl - Command-line client for the parking booking engine

PURPOSE:
  Runs the engine directly against a SQLite database, without the HTTP
  server. Handy for seeding demo data and checking quotes by hand.

COMMANDS:
  parkingctl scenarios                      List demo scenarios
  parkingctl seed <scenario>                Reset the database and load one
  parkingctl quote -r <id> --in .. --out .. Resolve availability + price
  parkingctl book  -r <id> --in .. --out .. Book a window
  parkingctl cancel <id|code>               Cancel a reservation
  parkingctl availability -r <id> --from .. --to ..

Output is JSON in the same shape the HTTP API returns.

GLOBAL FLAGS:
  --db  SQLite database path (default: $SQLITE_PATH or parking.db)
  --tz  Local timezone days are keyed in (default: $PARKING_TIMEZONE or UTC)
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
