package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"whisperq/internal/constants"
	"whisperq/internal/database"

	"github.com/sirupsen/logrus"
)

// unset marks -set-max-recipients as not given
const unset = -1

func main() {
	dbPath := flag.String("db", "./whisperq.db", "Path to the database file")
	setMax := flag.Int("set-max-recipients", unset, "Overwrite the persisted recipient cap (e.g. to lift a freeze); whisperq reads it only at startup, so restart it afterwards")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Stdout, *dbPath, *setMax); err != nil {
		logger.WithError(err).Fatal("Database maintenance failed")
	}
}

// run opens the database, which applies any pending migrations, then prints
// the schema and dispatcher state.
func run(ctx context.Context, out io.Writer, dbPath string, setMax int) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := database.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	versions, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied migrations (%d):\n", len(versions))
	for _, v := range versions {
		fmt.Fprintf(out, "  %s\n", v)
	}

	if setMax != unset {
		if setMax < 1 {
			return fmt.Errorf("max recipients must be at least 1, got %d", setMax)
		}
		if err := db.SetMaxWhisperRecipients(ctx, setMax); err != nil {
			return err
		}
		fmt.Fprintf(out, "Max whisper recipients set to %d (restart whisperq to apply)\n", setMax)
	}

	limit, ok, err := db.GetMaxWhisperRecipients(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(out, "Max whisper recipients: %d\n", limit)
	} else {
		fmt.Fprintf(out, "Max whisper recipients: default (%d)\n", constants.DefaultMaxWhisperRecipients)
	}

	marker, err := db.GetTimer(ctx, constants.WhisperQueueTimerName)
	if err != nil {
		return err
	}
	if marker == nil {
		fmt.Fprintln(out, "Recipient window marker: none")
	} else {
		fmt.Fprintf(out, "Recipient window marker: %s\n", marker.UTC().Format(time.RFC3339))
	}
	return nil
}
