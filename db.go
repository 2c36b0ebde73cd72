package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type DBConfig struct {
	URL    string
	Schema string
	Tag    string
}

func dbURLFromEnv() string {
	if value := strings.TrimSpace(os.Getenv("TOUR_SALES_REPORT_DB_URL")); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

func sanitizeSchema(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("db schema is required")
	}
	valid := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	if !valid.MatchString(value) {
		return "", fmt.Errorf("invalid schema name: %s", value)
	}
	return value, nil
}

func seedDatabase(report Report, cfg DBConfig) (string, error) {
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return "", err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return "", err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	if err := ensureSchema(ctx, db, schema); err != nil {
		return "", err
	}

	var count int
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s.report_runs`, schema)).Scan(&count); err != nil {
		return "", err
	}
	if count > 0 {
		fmt.Println("Report data already present; skipping seed.")
		return "", nil
	}

	return storeReportTx(ctx, db, report, schema, cfg.Tag)
}

func storeReportInDB(report Report, cfg DBConfig) (string, error) {
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return "", err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return "", err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	if err := ensureSchema(ctx, db, schema); err != nil {
		return "", err
	}

	return storeReportTx(ctx, db, report, schema, cfg.Tag)
}

func storeReportTx(ctx context.Context, db *sql.DB, report Report, schema string, tag string) (string, error) {
	runID := uuid.New()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.report_runs (
			id, total_events, concert_count, upsell_count, orphan_count,
			total_shows, shows_with_sales, shows_with_upsell_sales,
			total_tickets, upsell_tickets, upsell_share_pct, sale_rows,
			invalid_event_rows, invalid_sale_rows, run_tag
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,
			$9,$10,$11,$12,
			$13,$14,$15
		)`, schema),
		runID,
		report.Summary.TotalEvents,
		report.Summary.ConcertCount,
		report.Summary.UpsellCount,
		report.Summary.OrphanCount,
		report.Summary.TotalShows,
		report.Summary.ShowsWithSales,
		report.Summary.ShowsWithUpsells,
		report.Summary.TotalTickets,
		report.Summary.UpsellTickets,
		report.Summary.UpsellSharePct,
		report.Summary.SaleRows,
		report.Summary.InvalidEventRows,
		report.Summary.InvalidSaleRows,
		nullString(tag),
	)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}

	insertPairSQL := fmt.Sprintf(`
		INSERT INTO %s.concert_upsell_pairs (
			id, run_id, concert_event_id, concert_name, venue_id, event_dt,
			upsell_event_id, upsell_event_name
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8
		)`, schema)

	for _, entry := range report.Associations {
		_, err = tx.ExecContext(ctx, insertPairSQL,
			uuid.New(),
			runID,
			entry.ConcertID,
			entry.ConcertName,
			entry.VenueID,
			nullEventDate(entry.EventDate),
			nullString(entry.UpsellID),
			nullString(entry.UpsellName),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	insertOrphanSQL := fmt.Sprintf(`
		INSERT INTO %s.orphan_upsells (
			id, run_id, event_id, event_name, venue_id, event_dt
		) VALUES (
			$1,$2,$3,$4,$5,$6
		)`, schema)

	for _, entry := range report.Orphans {
		_, err = tx.ExecContext(ctx, insertOrphanSQL,
			uuid.New(),
			runID,
			entry.EventID,
			nullString(entry.EventName),
			nullString(entry.VenueID),
			nullEventDate(entry.EventDate),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	insertShowSQL := fmt.Sprintf(`
		INSERT INTO %s.show_rankings (
			id, run_id, concert_event_id, concert_name, venue_id, event_dt,
			concert_tickets, upsell_tickets, total_tickets, upsell_pct,
			rank_top, rank_bottom, flag
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13
		)`, schema)

	for _, entry := range report.Shows {
		upsellPct := sql.NullFloat64{}
		if entry.UpsellPct != nil {
			upsellPct = sql.NullFloat64{Float64: *entry.UpsellPct, Valid: true}
		}
		_, err = tx.ExecContext(ctx, insertShowSQL,
			uuid.New(),
			runID,
			entry.ConcertID,
			entry.ConcertName,
			entry.VenueID,
			nullEventDate(entry.EventDate),
			entry.ConcertTickets,
			entry.UpsellTickets,
			entry.TotalTickets,
			upsellPct,
			entry.RankTop,
			entry.RankBottom,
			nullString(entry.Flag),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	insertVenueSQL := fmt.Sprintf(`
		INSERT INTO %s.venue_rates (
			id, run_id, venue_id, concert_tickets, upsell_tickets,
			upsell_options, upsell_rate_pct
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7
		)`, schema)

	for _, entry := range report.VenueRates {
		_, err = tx.ExecContext(ctx, insertVenueSQL,
			uuid.New(),
			runID,
			entry.VenueID,
			entry.ConcertTickets,
			entry.UpsellTickets,
			entry.UpsellOptions,
			entry.UpsellRatePct,
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID.String(), nil
}

func ensureSchema(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.report_runs (
			id uuid PRIMARY KEY,
			total_events integer NOT NULL,
			concert_count integer NOT NULL,
			upsell_count integer NOT NULL,
			orphan_count integer NOT NULL,
			total_shows integer NOT NULL,
			shows_with_sales integer NOT NULL,
			shows_with_upsell_sales integer NOT NULL,
			total_tickets bigint NOT NULL,
			upsell_tickets bigint NOT NULL,
			upsell_share_pct numeric(6,1) NOT NULL,
			sale_rows integer NOT NULL,
			invalid_event_rows integer NOT NULL,
			invalid_sale_rows integer NOT NULL,
			run_tag text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.concert_upsell_pairs (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.report_runs(id) ON DELETE CASCADE,
			concert_event_id text NOT NULL,
			concert_name text NOT NULL,
			venue_id text NOT NULL,
			event_dt date,
			upsell_event_id text,
			upsell_event_name text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.orphan_upsells (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.report_runs(id) ON DELETE CASCADE,
			event_id text NOT NULL,
			event_name text,
			venue_id text,
			event_dt date,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.show_rankings (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.report_runs(id) ON DELETE CASCADE,
			concert_event_id text NOT NULL,
			concert_name text NOT NULL,
			venue_id text NOT NULL,
			event_dt date,
			concert_tickets bigint NOT NULL,
			upsell_tickets bigint NOT NULL,
			total_tickets bigint NOT NULL,
			upsell_pct numeric(6,1),
			rank_top integer NOT NULL,
			rank_bottom integer NOT NULL,
			flag text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.venue_rates (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.report_runs(id) ON DELETE CASCADE,
			venue_id text NOT NULL,
			concert_tickets bigint NOT NULL,
			upsell_tickets bigint NOT NULL,
			upsell_options integer NOT NULL,
			upsell_rate_pct numeric(8,2) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_concert_upsell_pairs_run_idx ON %s.concert_upsell_pairs (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_orphan_upsells_run_idx ON %s.orphan_upsells (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_show_rankings_run_idx ON %s.show_rankings (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_venue_rates_run_idx ON %s.venue_rates (run_id)`, schema, schema))
	return err
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// nullEventDate parses the opaque event_dt string for the date column;
// unparsable values store as NULL rather than failing the run.
func nullEventDate(value string) sql.NullTime {
	parsed, err := parseDate(value)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dateOnly(parsed), Valid: true}
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	layouts := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-2006",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", value)
}

func dateOnly(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, value.Location())
}
