package main

import (
	"strings"
	"testing"
)

func TestIsConcert(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Neon Harbor Super Awesome Tour - Night 1", true},
		{"SUPER AWESOME TOUR at the dome", true},
		{"VIP Parking", false},
		{"Merch Pickup - super awesome", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isConcert(tc.name); got != tc.want {
			t.Fatalf("isConcert(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAssociateConcertsAndUpsells(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour - Harbor City", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "VIP Parking", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour - Lakeside", VenueID: "V2", EventDate: "2024-10-25"},
		{EventID: "U2", EventName: "Merch Pickup", VenueID: "V1", EventDate: "2024-10-25"},
	}

	rows, orphans, err := associateConcertsAndUpsells(events)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 pair rows, got %d", len(rows))
	}
	if rows[0].ConcertID != "C1" || rows[0].UpsellID != "U1" {
		t.Fatalf("expected C1/U1 first, got %s/%s", rows[0].ConcertID, rows[0].UpsellID)
	}
	if rows[1].ConcertID != "C2" || rows[1].UpsellID != "" || rows[1].UpsellName != "" {
		t.Fatalf("expected C2 with empty upsell columns, got %+v", rows[1])
	}

	if len(orphans) != 1 || orphans[0].EventID != "U2" {
		t.Fatalf("expected U2 as the only orphan, got %+v", orphans)
	}
	for _, row := range rows {
		if row.UpsellID == "U2" {
			t.Fatalf("orphan U2 leaked into pair rows")
		}
	}
}

func TestAssociateOrdersNullUpsellsLast(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour", VenueID: "V2", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "Parking", VenueID: "V2", EventDate: "2024-10-24"},
	}

	rows, _, err := associateConcertsAndUpsells(events)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Same date: V1 sorts before V2 regardless of its empty upsell columns.
	if rows[0].ConcertID != "C1" || rows[1].ConcertID != "C2" {
		t.Fatalf("unexpected order: %s then %s", rows[0].ConcertID, rows[1].ConcertID)
	}
}

func TestRankShows(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour - Harbor City", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "VIP Parking", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour - Lakeside", VenueID: "V2", EventDate: "2024-10-25"},
		{EventID: "C3", EventName: "Super Awesome Tour - Hillcrest", VenueID: "V3", EventDate: "2024-10-26"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 60},
		{EventID: "C1", Tickets: 40},
		{EventID: "U1", Tickets: 25},
		{EventID: "C2", Tickets: 50},
		// C3 has no sales rows at all.
	}

	shows, err := rankShows(events, sales, 2)
	if err != nil {
		t.Fatalf("rank shows: %v", err)
	}

	if len(shows) != 2 {
		t.Fatalf("expected 2 ranked shows (C3 has no sales rows), got %d", len(shows))
	}
	for _, show := range shows {
		if show.ConcertID == "C3" {
			t.Fatalf("show without sales rows must not be ranked")
		}
		if show.ConcertTickets+show.UpsellTickets != show.TotalTickets {
			t.Fatalf("show %s: %d + %d != %d", show.ConcertID, show.ConcertTickets, show.UpsellTickets, show.TotalTickets)
		}
	}

	top := shows[0]
	if top.ConcertID != "C1" || top.TotalTickets != 125 || top.ConcertTickets != 100 || top.UpsellTickets != 25 {
		t.Fatalf("unexpected top show: %+v", top)
	}
	if top.UpsellPct == nil || !floatEqual(*top.UpsellPct, 20.0) {
		t.Fatalf("expected upsell pct 20.0, got %v", top.UpsellPct)
	}
	if top.RankTop != 1 || top.RankBottom != 2 {
		t.Fatalf("unexpected ranks for top show: top=%d bottom=%d", top.RankTop, top.RankBottom)
	}

	second := shows[1]
	if second.ConcertID != "C2" || second.RankTop != 2 || second.RankBottom != 1 {
		t.Fatalf("unexpected second show: %+v", second)
	}
}

func TestRankShowsCompetitionRanking(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour A", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour B", VenueID: "V2", EventDate: "2024-10-25"},
		{EventID: "C3", EventName: "Super Awesome Tour C", VenueID: "V3", EventDate: "2024-10-26"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 100},
		{EventID: "C2", Tickets: 100},
		{EventID: "C3", Tickets: 50},
	}

	shows, err := rankShows(events, sales, 2)
	if err != nil {
		t.Fatalf("rank shows: %v", err)
	}
	if len(shows) != 3 {
		t.Fatalf("expected 3 shows, got %d", len(shows))
	}

	byID := map[string]ShowRow{}
	for _, show := range shows {
		byID[show.ConcertID] = show
	}
	if byID["C1"].RankTop != 1 || byID["C2"].RankTop != 1 {
		t.Fatalf("tied shows must share rank 1, got %d and %d", byID["C1"].RankTop, byID["C2"].RankTop)
	}
	if byID["C3"].RankTop != 3 {
		t.Fatalf("rank after a two-way tie must skip to 3, got %d", byID["C3"].RankTop)
	}
	if byID["C3"].RankBottom != 1 || byID["C1"].RankBottom != 2 || byID["C2"].RankBottom != 2 {
		t.Fatalf("unexpected bottom ranks: %+v", byID)
	}
	if byID["C1"].Flag != "TOP 2" || byID["C2"].Flag != "TOP 2" {
		t.Fatalf("tied leaders must both flag TOP 2")
	}
	if byID["C3"].Flag != "BOTTOM 2" {
		t.Fatalf("expected BOTTOM 2 for C3, got %q", byID["C3"].Flag)
	}
}

func TestRankShowsZeroTotal(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour", VenueID: "V1", EventDate: "2024-10-24"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 0},
	}

	shows, err := rankShows(events, sales, 2)
	if err != nil {
		t.Fatalf("rank shows: %v", err)
	}
	if len(shows) != 1 {
		t.Fatalf("show with zero-ticket sales rows still ranks, got %d shows", len(shows))
	}
	if shows[0].TotalTickets != 0 || shows[0].UpsellPct != nil {
		t.Fatalf("expected total 0 with nil upsell pct, got %+v", shows[0])
	}
}

func TestVenueUpsellRates(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour - Harbor City", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "Parking", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U2", EventName: "VIP Lounge", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour - Lakeside", VenueID: "V2", EventDate: "2024-10-25"},
		{EventID: "C3", EventName: "Super Awesome Tour - Hillcrest", VenueID: "V3", EventDate: "2024-10-26"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 200},
		{EventID: "U1", Tickets: 30},
		{EventID: "U1", Tickets: 20},
		// U2 has no sales rows: contributes neither tickets nor an option.
		// C2 has no sales rows: V2 never enters the report.
		{EventID: "C3", Tickets: 100},
	}

	rows, err := venueUpsellRates(events, sales)
	if err != nil {
		t.Fatalf("venue rates: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 venues, got %d", len(rows))
	}
	for _, row := range rows {
		if row.VenueID == "V2" {
			t.Fatalf("venue with no concert sales must be excluded")
		}
		if row.ConcertTickets <= 0 {
			t.Fatalf("venue %s has concert_tickets %d", row.VenueID, row.ConcertTickets)
		}
	}

	first := rows[0]
	if first.VenueID != "V1" || first.UpsellOptions != 1 || first.UpsellTickets != 50 {
		t.Fatalf("unexpected V1 row: %+v", first)
	}
	if !floatEqual(first.UpsellRatePct, 25.0) {
		t.Fatalf("expected rate 25.00, got %.2f", first.UpsellRatePct)
	}

	second := rows[1]
	if second.VenueID != "V3" || second.UpsellOptions != 0 || second.UpsellTickets != 0 {
		t.Fatalf("unexpected V3 row: %+v", second)
	}
	if !floatEqual(second.UpsellRatePct, 0.0) {
		t.Fatalf("expected rate 0.00, got %.2f", second.UpsellRatePct)
	}
}

func TestVenueRateRounding(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "Parking", VenueID: "V1", EventDate: "2024-10-24"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 3},
		{EventID: "U1", Tickets: 1},
	}

	rows, err := venueUpsellRates(events, sales)
	if err != nil {
		t.Fatalf("venue rates: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 venue, got %d", len(rows))
	}
	if !floatEqual(rows[0].UpsellRatePct, 33.33) {
		t.Fatalf("expected 33.33, got %.2f", rows[0].UpsellRatePct)
	}
}

func TestDuplicateEventIDProcessedIndependently(t *testing.T) {
	// The source data carries one event_id twice with different venue,
	// date and name. Both occurrences stay in play and each picks up the
	// full sales total recorded under that event_id.
	events := []Event{
		{EventID: "E9", EventName: "Super Awesome Tour - Harbor City", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "E9", EventName: "Super Awesome Tour - Lakeside", VenueID: "V2", EventDate: "2024-10-25"},
	}
	sales := []TicketSale{
		{EventID: "E9", Tickets: 50},
	}

	shows, err := rankShows(events, sales, 2)
	if err != nil {
		t.Fatalf("rank shows: %v", err)
	}
	if len(shows) != 2 {
		t.Fatalf("expected both occurrences ranked, got %d", len(shows))
	}
	for _, show := range shows {
		if show.ConcertTickets != 50 {
			t.Fatalf("occurrence at venue %s expected 50 tickets, got %d", show.VenueID, show.ConcertTickets)
		}
	}

	rows, _, err := associateConcertsAndUpsells(events)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both occurrences in association output, got %d", len(rows))
	}
}

func TestConcertFanOutDetected(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour - Early", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour - Late", VenueID: "V1", EventDate: "2024-10-24"},
	}
	sales := []TicketSale{{EventID: "C1", Tickets: 10}}

	if _, _, err := associateConcertsAndUpsells(events); err == nil {
		t.Fatalf("associate must reject two concerts on one venue+date")
	} else if !strings.Contains(err.Error(), "data integrity") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := rankShows(events, sales, 2); err == nil {
		t.Fatalf("rankShows must reject two concerts on one venue+date")
	}
	if _, err := venueUpsellRates(events, sales); err == nil {
		t.Fatalf("venueUpsellRates must reject two concerts on one venue+date")
	}
}

func TestBuildReportSummaryAndIdempotence(t *testing.T) {
	events := []Event{
		{EventID: "C1", EventName: "Super Awesome Tour - Harbor City", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "U1", EventName: "VIP Parking", VenueID: "V1", EventDate: "2024-10-24"},
		{EventID: "C2", EventName: "Super Awesome Tour - Lakeside", VenueID: "V2", EventDate: "2024-10-25"},
		{EventID: "U2", EventName: "Merch Pickup", VenueID: "V9", EventDate: "2024-11-01"},
	}
	sales := []TicketSale{
		{EventID: "C1", Tickets: 100},
		{EventID: "U1", Tickets: 25},
	}

	report, err := buildReport(events, sales, 2)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}

	summary := report.Summary
	if summary.TotalEvents != 4 || summary.ConcertCount != 2 || summary.UpsellCount != 2 {
		t.Fatalf("unexpected event counts: %+v", summary)
	}
	if summary.OrphanCount != 1 {
		t.Fatalf("expected 1 orphan, got %d", summary.OrphanCount)
	}
	if summary.TotalShows != 2 || summary.ShowsWithSales != 1 || summary.ShowsWithUpsells != 1 {
		t.Fatalf("unexpected show counts: %+v", summary)
	}
	if summary.TotalTickets != 125 || summary.UpsellTickets != 25 {
		t.Fatalf("unexpected ticket totals: %+v", summary)
	}
	if !floatEqual(summary.UpsellSharePct, 20.0) {
		t.Fatalf("expected upsell share 20.0, got %.1f", summary.UpsellSharePct)
	}

	again, err := buildReport(events, sales, 2)
	if err != nil {
		t.Fatalf("build report again: %v", err)
	}
	if len(again.Associations) != len(report.Associations) ||
		len(again.Shows) != len(report.Shows) ||
		len(again.VenueRates) != len(report.VenueRates) {
		t.Fatalf("second run differs from first")
	}
	for i := range report.Shows {
		if again.Shows[i].ConcertID != report.Shows[i].ConcertID ||
			again.Shows[i].TotalTickets != report.Shows[i].TotalTickets ||
			again.Shows[i].RankTop != report.Shows[i].RankTop {
			t.Fatalf("show order changed between runs")
		}
	}
}

func floatEqual(a float64, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.005
}
