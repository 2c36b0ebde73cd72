package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultTopN = 2

func main() {
	eventsPath := flag.String("events", "", "Path to events CSV")
	salesPath := flag.String("sales", "", "Path to ticket_sales CSV")
	section := flag.String("report", "all", "Report section to print (all, pairs, shows, venues)")
	topN := flag.Int("top", defaultTopN, "Rank window for TOP/BOTTOM show flags")
	jsonOut := flag.String("json", "", "Optional JSON output path for the full report")
	pairsOut := flag.String("pairs-csv", "", "Optional CSV output for concert/upsell pairs")
	orphansOut := flag.String("orphans-csv", "", "Optional CSV output for orphaned upsells")
	showsOut := flag.String("shows-csv", "", "Optional CSV output for the show ranking")
	venuesOut := flag.String("venues-csv", "", "Optional CSV output for venue upsell rates")
	dbEnabled := flag.Bool("db", false, "Store report in Postgres (requires TOUR_SALES_REPORT_DB_URL or DATABASE_URL)")
	dbSchema := flag.String("db-schema", "tour_sales_report", "Postgres schema for report tables")
	dbTag := flag.String("db-tag", "", "Optional label for this report run")
	initDB := flag.Bool("init-db", false, "Initialize database schema and seed data if empty")
	flag.Parse()

	if *eventsPath == "" || *salesPath == "" {
		exitWithError(errors.New("--events and --sales are required"))
	}
	if *topN <= 0 {
		exitWithError(errors.New("--top must be positive"))
	}
	if !validSection(*section) {
		exitWithError(fmt.Errorf("invalid --report value: %s", *section))
	}

	events, invalidEvents, err := loadEvents(*eventsPath)
	if err != nil {
		exitWithError(err)
	}
	sales, invalidSales, err := loadSales(*salesPath)
	if err != nil {
		exitWithError(err)
	}

	report, err := buildReport(events, sales, *topN)
	if err != nil {
		exitWithError(err)
	}
	report.Summary.InvalidEventRows = invalidEvents
	report.Summary.InvalidSaleRows = invalidSales

	printReport(report, *section, *eventsPath, *salesPath)

	if *jsonOut != "" {
		if err := writeJSON(report, *jsonOut); err != nil {
			exitWithError(err)
		}
		fmt.Printf("\nJSON report saved to %s\n", *jsonOut)
	}

	csvOutputs := []struct {
		path    string
		header  []string
		records [][]string
		label   string
	}{
		{*pairsOut, pairsCSVHeader, pairsCSVRecords(report.Associations), "Pairs"},
		{*orphansOut, orphansCSVHeader, orphansCSVRecords(report.Orphans), "Orphans"},
		{*showsOut, showsCSVHeader, showsCSVRecords(report.Shows), "Shows"},
		{*venuesOut, venuesCSVHeader, venuesCSVRecords(report.VenueRates), "Venues"},
	}
	for _, out := range csvOutputs {
		if out.path == "" {
			continue
		}
		if err := writeCSV(out.path, out.header, out.records); err != nil {
			exitWithError(err)
		}
		fmt.Printf("%s CSV saved to %s\n", out.label, out.path)
	}

	if *dbEnabled || *initDB {
		dbURL := dbURLFromEnv()
		if dbURL == "" {
			exitWithError(errors.New("database URL missing; set TOUR_SALES_REPORT_DB_URL or DATABASE_URL"))
		}
		cfg := DBConfig{
			URL:    dbURL,
			Schema: *dbSchema,
			Tag:    *dbTag,
		}
		seeded := false
		if *initDB {
			runID, err := seedDatabase(report, cfg)
			if err != nil {
				exitWithError(err)
			}
			if runID != "" {
				seeded = true
				fmt.Printf("\nSeeded Postgres with initial report run (run_id=%s)\n", runID)
			}
		}
		if *dbEnabled {
			if seeded {
				fmt.Println("Skipped duplicate insert; current report already used for seed.")
			} else {
				runID, err := storeReportInDB(report, cfg)
				if err != nil {
					exitWithError(err)
				}
				fmt.Printf("\nStored report run in Postgres (run_id=%s)\n", runID)
			}
		}
	}
}

func validSection(value string) bool {
	switch value {
	case "all", "pairs", "shows", "venues":
		return true
	}
	return false
}

func loadEvents(path string) ([]Event, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("unable to read events header: %w", err)
	}

	colMap := normalizeHeaders(headers)
	idIdx, ok := findColumn(colMap, []string{"event_id", "eventid", "id"})
	if !ok {
		return nil, 0, errors.New("events CSV missing event_id column")
	}
	nameIdx, ok := findColumn(colMap, []string{"event_name", "name", "title"})
	if !ok {
		return nil, 0, errors.New("events CSV missing event_name column")
	}
	venueIdx, ok := findColumn(colMap, []string{"venue_id", "venue"})
	if !ok {
		return nil, 0, errors.New("events CSV missing venue_id column")
	}
	dateIdx, ok := findColumn(colMap, []string{"event_dt", "event_date", "date"})
	if !ok {
		return nil, 0, errors.New("events CSV missing event_dt column")
	}

	var events []Event
	invalidRows := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("unable to read events CSV: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		eventID := getValue(record, idIdx)
		if eventID == "" {
			invalidRows++
			continue
		}

		// Blank venue or date is kept as-is; such rows simply never
		// match in the venue+date join.
		events = append(events, Event{
			EventID:   eventID,
			EventName: getValue(record, nameIdx),
			VenueID:   getValue(record, venueIdx),
			EventDate: getValue(record, dateIdx),
		})
	}

	return events, invalidRows, nil
}

func loadSales(path string) ([]TicketSale, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("unable to read sales header: %w", err)
	}

	colMap := normalizeHeaders(headers)
	idIdx, ok := findColumn(colMap, []string{"event_id", "eventid", "event"})
	if !ok {
		return nil, 0, errors.New("ticket_sales CSV missing event_id column")
	}
	ticketsIdx, ok := findColumn(colMap, []string{"tickets_sold_in_minute", "tickets_sold", "tickets"})
	if !ok {
		return nil, 0, errors.New("ticket_sales CSV missing tickets_sold_in_minute column")
	}

	var sales []TicketSale
	invalidRows := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("unable to read sales CSV: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		eventID := getValue(record, idIdx)
		if eventID == "" {
			invalidRows++
			continue
		}
		tickets, err := strconv.Atoi(getValue(record, ticketsIdx))
		if err != nil || tickets < 0 {
			invalidRows++
			continue
		}

		sales = append(sales, TicketSale{EventID: eventID, Tickets: tickets})
	}

	return sales, invalidRows, nil
}

func printReport(report Report, section string, eventsPath string, salesPath string) {
	fmt.Println("Neon Harbor Super Awesome Tour Sales Report")
	fmt.Println(strings.Repeat("=", 44))
	fmt.Printf("Input: %s, %s\n", filepath.Base(eventsPath), filepath.Base(salesPath))
	fmt.Printf("Events: %d (%d concerts, %d upsells, %d orphaned upsells)\n",
		report.Summary.TotalEvents,
		report.Summary.ConcertCount,
		report.Summary.UpsellCount,
		report.Summary.OrphanCount,
	)
	fmt.Printf("Shows: %d total | %d with sales data | %d with upsell sales\n",
		report.Summary.TotalShows,
		report.Summary.ShowsWithSales,
		report.Summary.ShowsWithUpsells,
	)
	fmt.Printf("Tickets: %d total, %d upsell (%.1f%% of total)\n",
		report.Summary.TotalTickets,
		report.Summary.UpsellTickets,
		report.Summary.UpsellSharePct,
	)
	if report.Summary.InvalidEventRows > 0 || report.Summary.InvalidSaleRows > 0 {
		fmt.Printf("Invalid rows skipped: %d events, %d sales\n",
			report.Summary.InvalidEventRows, report.Summary.InvalidSaleRows)
	}

	if section == "all" || section == "pairs" {
		fmt.Println("\nConcert / upsell pairs")
		fmt.Println(strings.Repeat("-", 44))
		if len(report.Associations) == 0 {
			fmt.Println("No concerts found.")
		}
		for _, row := range report.Associations {
			if row.UpsellID == "" {
				fmt.Printf("%s | venue %s | %s | no upsells\n",
					row.EventDate, row.VenueID, row.ConcertName)
				continue
			}
			fmt.Printf("%s | venue %s | %s | upsell: %s (%s)\n",
				row.EventDate, row.VenueID, row.ConcertName, row.UpsellName, row.UpsellID)
		}
		if len(report.Orphans) > 0 {
			fmt.Println("\nOrphaned upsells (no concert at venue+date)")
			fmt.Println(strings.Repeat("-", 44))
			for _, orphan := range report.Orphans {
				fmt.Printf("%s | venue %s | %s (%s)\n",
					orphan.EventDate, orphan.VenueID, orphan.EventName, orphan.EventID)
			}
		}
	}

	if section == "all" || section == "shows" {
		fmt.Println("\nShow ranking (by total tickets)")
		fmt.Println(strings.Repeat("-", 44))
		if len(report.Shows) == 0 {
			fmt.Println("No shows with sales data.")
		}
		for _, show := range report.Shows {
			label := show.Flag
			if label == "" {
				label = "-"
			}
			fmt.Printf("#%d | venue %s | %s | concert %d | upsell %d | total %d | upsell %s | %s\n",
				show.RankTop,
				show.VenueID,
				show.EventDate,
				show.ConcertTickets,
				show.UpsellTickets,
				show.TotalTickets,
				formatPct(show.UpsellPct),
				label,
			)
		}
	}

	if section == "all" || section == "venues" {
		fmt.Println("\nUpsell rate by venue")
		fmt.Println(strings.Repeat("-", 44))
		if len(report.VenueRates) == 0 {
			fmt.Println("No venues with concert sales.")
		}
		for _, rate := range report.VenueRates {
			fmt.Printf("venue %s | options %d | concert %d | upsell %d | rate %.2f%%\n",
				rate.VenueID,
				rate.UpsellOptions,
				rate.ConcertTickets,
				rate.UpsellTickets,
				rate.UpsellRatePct,
			)
		}
	}
}

func formatPct(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *value)
}

func writeJSON(report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var (
	pairsCSVHeader   = []string{"concert_event_id", "concert_name", "venue_id", "event_dt", "upsell_event_id", "upsell_event_name"}
	orphansCSVHeader = []string{"event_id", "event_name", "venue_id", "event_dt"}
	showsCSVHeader   = []string{"concert_event_id", "concert_name", "venue_id", "event_dt", "concert_tickets", "upsell_tickets", "total_tickets", "upsell_pct", "rank_top", "rank_bottom", "flag"}
	venuesCSVHeader  = []string{"venue_id", "concert_tickets", "upsell_tickets", "upsell_options", "upsell_rate_pct"}
)

func pairsCSVRecords(rows []AssociationRow) [][]string {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.ConcertID,
			row.ConcertName,
			row.VenueID,
			row.EventDate,
			row.UpsellID,
			row.UpsellName,
		})
	}
	return records
}

func orphansCSVRecords(rows []OrphanUpsell) [][]string {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.EventID,
			row.EventName,
			row.VenueID,
			row.EventDate,
		})
	}
	return records
}

func showsCSVRecords(rows []ShowRow) [][]string {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		pct := ""
		if row.UpsellPct != nil {
			pct = strconv.FormatFloat(*row.UpsellPct, 'f', 1, 64)
		}
		records = append(records, []string{
			row.ConcertID,
			row.ConcertName,
			row.VenueID,
			row.EventDate,
			strconv.Itoa(row.ConcertTickets),
			strconv.Itoa(row.UpsellTickets),
			strconv.Itoa(row.TotalTickets),
			pct,
			strconv.Itoa(row.RankTop),
			strconv.Itoa(row.RankBottom),
			row.Flag,
		})
	}
	return records
}

func venuesCSVRecords(rows []VenueRateRow) [][]string {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.VenueID,
			strconv.Itoa(row.ConcertTickets),
			strconv.Itoa(row.UpsellTickets),
			strconv.Itoa(row.UpsellOptions),
			strconv.FormatFloat(row.UpsellRatePct, 'f', 2, 64),
		})
	}
	return records
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := normalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

func normalizeHeader(value string) string {
	value = strings.TrimPrefix(value, "\ufeff") // UTF-8 BOM from spreadsheet exports
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

func findColumn(headers map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if idx, ok := headers[normalizeHeader(name)]; ok {
			return idx, true
		}
	}
	return -1, false
}

func getValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
