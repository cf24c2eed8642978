package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/google"
	"studiobook/internal/logging"
	"studiobook/internal/models"
	"studiobook/internal/seed"
	"studiobook/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "configs/config.yaml", "path to config.yaml")
		schedulePath = flag.String("schedule", "configs/schedule.yaml", "path to the schedule to load; empty skips seeding")
		resync       = flag.Bool("resync-sheets", false, "rewrite the reservations spreadsheet from the database")
		timeout      = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *schedulePath != "" {
		schedule, err := seed.Load(*schedulePath)
		if err != nil {
			return err
		}
		res, err := seed.Apply(ctx, db, schedule, logging.Component(logger, "seed"))
		if err != nil {
			return fmt.Errorf("apply schedule: %w", err)
		}
		fmt.Printf("Seed finished: identities=%d slots=%d packages=%d\n", res.Identities, res.Slots, res.Packages)
	}

	if *resync {
		n, err := resyncSheets(ctx, cfg, db, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Spreadsheet rewritten: %d reservations\n", n)
	}
	return nil
}

// resyncSheets replaces the spreadsheet with every confirmed reservation in
// the staff window.
func resyncSheets(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) (int, error) {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationsSpreadSheetID == "" {
		return 0, fmt.Errorf("google credentials_file and reservations_spreadsheet_id are required for a resync")
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReservationsSpreadSheetID,
		logging.Component(logger, "sheets"))
	if err != nil {
		return 0, err
	}

	clock := service.NewClock(cfg.Booking.Location())
	availability := service.NewAvailabilityService(db, cfg.Booking, clock, logger)
	from, to := availability.BookingWindow(models.RoleAdmin, clock.Today())

	slots, err := availability.RangeSlots(ctx, models.RoleAdmin, from, to)
	if err != nil {
		return 0, fmt.Errorf("list slots: %w", err)
	}

	var details []*models.ReservationDetail
	for _, slot := range slots {
		roster, err := availability.SlotRoster(ctx, slot.ID)
		if err != nil {
			return 0, fmt.Errorf("roster for slot %d: %w", slot.ID, err)
		}
		for i := range roster.Reservations {
			details = append(details, &roster.Reservations[i])
		}
	}

	if err := sheets.ReplaceReservations(ctx, details); err != nil {
		return 0, fmt.Errorf("replace spreadsheet rows: %w", err)
	}
	return len(details), nil
}
