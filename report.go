package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Any event whose name carries this marker is a tour concert; everything
// else at the same venue and date (parking, VIP packages, merch pickup)
// is an upsell.
const concertMarker = "super awesome tour"

type Event struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	VenueID   string `json:"venue_id"`
	EventDate string `json:"event_dt"`
}

type TicketSale struct {
	EventID string
	Tickets int
}

type AssociationRow struct {
	ConcertID   string `json:"concert_event_id"`
	ConcertName string `json:"concert_name"`
	VenueID     string `json:"venue_id"`
	EventDate   string `json:"event_dt"`
	UpsellID    string `json:"upsell_event_id,omitempty"`
	UpsellName  string `json:"upsell_event_name,omitempty"`
}

type OrphanUpsell struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	VenueID   string `json:"venue_id"`
	EventDate string `json:"event_dt"`
}

type ShowRow struct {
	ConcertID      string   `json:"concert_event_id"`
	ConcertName    string   `json:"concert_name"`
	VenueID        string   `json:"venue_id"`
	EventDate      string   `json:"event_dt"`
	ConcertTickets int      `json:"concert_tickets"`
	UpsellTickets  int      `json:"upsell_tickets"`
	TotalTickets   int      `json:"total_tickets"`
	UpsellPct      *float64 `json:"upsell_pct"`
	RankTop        int      `json:"rank_top"`
	RankBottom     int      `json:"rank_bottom"`
	Flag           string   `json:"flag,omitempty"`
}

type VenueRateRow struct {
	VenueID        string  `json:"venue_id"`
	ConcertTickets int     `json:"concert_tickets"`
	UpsellTickets  int     `json:"upsell_tickets"`
	UpsellOptions  int     `json:"upsell_options"`
	UpsellRatePct  float64 `json:"upsell_rate_pct"`
}

type TourSummary struct {
	TotalEvents      int     `json:"total_events"`
	ConcertCount     int     `json:"concert_count"`
	UpsellCount      int     `json:"upsell_count"`
	OrphanCount      int     `json:"orphan_upsell_count"`
	TotalShows       int     `json:"total_shows"`
	ShowsWithSales   int     `json:"shows_with_sales"`
	ShowsWithUpsells int     `json:"shows_with_upsell_sales"`
	TotalTickets     int     `json:"total_tickets"`
	UpsellTickets    int     `json:"upsell_tickets"`
	UpsellSharePct   float64 `json:"upsell_share_pct"`
	SaleRows         int     `json:"sale_rows"`
	InvalidEventRows int     `json:"invalid_event_rows"`
	InvalidSaleRows  int     `json:"invalid_sale_rows"`
}

type Report struct {
	Summary      TourSummary      `json:"summary"`
	Associations []AssociationRow `json:"concert_upsell_pairs"`
	Orphans      []OrphanUpsell   `json:"orphan_upsells"`
	Shows        []ShowRow        `json:"show_rankings"`
	VenueRates   []VenueRateRow   `json:"venue_rates"`
}

func isConcert(name string) bool {
	return strings.Contains(strings.ToLower(name), concertMarker)
}

func splitEvents(events []Event) ([]Event, []Event) {
	var concerts, upsells []Event
	for _, event := range events {
		if isConcert(event.EventName) {
			concerts = append(concerts, event)
		} else {
			upsells = append(upsells, event)
		}
	}
	return concerts, upsells
}

// venueDate is the join key linking an upsell to its parent concert.
type venueDate struct {
	VenueID   string
	EventDate string
}

// concertIndex maps (venue_id, event_dt) to the concert held there. Valid
// input has at most one concert per key; a second concert on the same key
// would fan sales out across both, so it is rejected instead of joined.
func concertIndex(concerts []Event) (map[venueDate]Event, error) {
	index := make(map[venueDate]Event, len(concerts))
	for _, concert := range concerts {
		key := venueDate{concert.VenueID, concert.EventDate}
		if existing, ok := index[key]; ok {
			return nil, fmt.Errorf("data integrity: concerts %s and %s both at venue %s on %s",
				existing.EventID, concert.EventID, concert.VenueID, concert.EventDate)
		}
		index[key] = concert
	}
	return index, nil
}

type salesTotal struct {
	Tickets int
	Rows    int
}

// sumSalesByEvent collapses the per-minute sales rows into one total per
// event_id. Events are looked up by id afterwards, so a duplicated
// event_id in the events table attaches the same sales total to each of
// its occurrences, matching join semantics.
func sumSalesByEvent(sales []TicketSale) map[string]salesTotal {
	totals := make(map[string]salesTotal)
	for _, sale := range sales {
		total := totals[sale.EventID]
		total.Tickets += sale.Tickets
		total.Rows++
		totals[sale.EventID] = total
	}
	return totals
}

// associateConcertsAndUpsells pairs every concert with the upsells at its
// venue and date. Concerts with no upsells still produce one row with
// empty upsell columns; upsells with no concert come back separately as
// orphans and never appear in the pair rows.
func associateConcertsAndUpsells(events []Event) ([]AssociationRow, []OrphanUpsell, error) {
	concerts, upsells := splitEvents(events)
	index, err := concertIndex(concerts)
	if err != nil {
		return nil, nil, err
	}

	matched := make(map[venueDate][]Event)
	var orphans []OrphanUpsell
	for _, upsell := range upsells {
		key := venueDate{upsell.VenueID, upsell.EventDate}
		if _, ok := index[key]; ok {
			matched[key] = append(matched[key], upsell)
			continue
		}
		orphans = append(orphans, OrphanUpsell{
			EventID:   upsell.EventID,
			EventName: upsell.EventName,
			VenueID:   upsell.VenueID,
			EventDate: upsell.EventDate,
		})
	}

	rows := make([]AssociationRow, 0, len(concerts))
	for _, concert := range concerts {
		base := AssociationRow{
			ConcertID:   concert.EventID,
			ConcertName: concert.EventName,
			VenueID:     concert.VenueID,
			EventDate:   concert.EventDate,
		}
		partners := matched[venueDate{concert.VenueID, concert.EventDate}]
		if len(partners) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, upsell := range partners {
			row := base
			row.UpsellID = upsell.EventID
			row.UpsellName = upsell.EventName
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.EventDate != b.EventDate {
			return a.EventDate < b.EventDate
		}
		if a.VenueID != b.VenueID {
			return a.VenueID < b.VenueID
		}
		// Rows without an upsell sort after matched rows.
		aNull := a.UpsellID == "" && a.UpsellName == ""
		bNull := b.UpsellID == "" && b.UpsellName == ""
		if aNull != bNull {
			return bNull
		}
		if a.UpsellName != b.UpsellName {
			return a.UpsellName < b.UpsellName
		}
		return a.UpsellID < b.UpsellID
	})

	sort.Slice(orphans, func(i, j int) bool {
		a, b := orphans[i], orphans[j]
		if a.EventDate != b.EventDate {
			return a.EventDate < b.EventDate
		}
		if a.VenueID != b.VenueID {
			return a.VenueID < b.VenueID
		}
		if a.EventName != b.EventName {
			return a.EventName < b.EventName
		}
		return a.EventID < b.EventID
	})

	return rows, orphans, nil
}

// rankShows aggregates sales to the show level (concert plus matched
// upsells) and ranks shows by total tickets in both directions using
// competition ranking. Shows whose events never appear in ticket_sales
// are left out entirely, so they cannot claim a bottom rank.
func rankShows(events []Event, sales []TicketSale, topN int) ([]ShowRow, error) {
	concerts, upsells := splitEvents(events)
	if _, err := concertIndex(concerts); err != nil {
		return nil, err
	}
	totals := sumSalesByEvent(sales)

	type showAgg struct {
		concertTickets int
		upsellTickets  int
		saleRows       int
	}
	aggs := make(map[venueDate]*showAgg, len(concerts))
	for _, concert := range concerts {
		total := totals[concert.EventID]
		aggs[venueDate{concert.VenueID, concert.EventDate}] = &showAgg{
			concertTickets: total.Tickets,
			saleRows:       total.Rows,
		}
	}
	for _, upsell := range upsells {
		agg, ok := aggs[venueDate{upsell.VenueID, upsell.EventDate}]
		if !ok {
			continue // orphaned upsell, no show to attribute to
		}
		total := totals[upsell.EventID]
		agg.upsellTickets += total.Tickets
		agg.saleRows += total.Rows
	}

	rows := make([]ShowRow, 0, len(concerts))
	for _, concert := range concerts {
		agg := aggs[venueDate{concert.VenueID, concert.EventDate}]
		if agg.saleRows == 0 {
			continue
		}
		total := agg.concertTickets + agg.upsellTickets
		row := ShowRow{
			ConcertID:      concert.EventID,
			ConcertName:    concert.EventName,
			VenueID:        concert.VenueID,
			EventDate:      concert.EventDate,
			ConcertTickets: agg.concertTickets,
			UpsellTickets:  agg.upsellTickets,
			TotalTickets:   total,
		}
		if total > 0 {
			pct := round1(float64(agg.upsellTickets) * 100 / float64(total))
			row.UpsellPct = &pct
		}
		rows = append(rows, row)
	}

	// Competition ranking: equal totals share a rank, the next rank skips.
	for i := range rows {
		larger, smaller := 0, 0
		for j := range rows {
			if rows[j].TotalTickets > rows[i].TotalTickets {
				larger++
			}
			if rows[j].TotalTickets < rows[i].TotalTickets {
				smaller++
			}
		}
		rows[i].RankTop = larger + 1
		rows[i].RankBottom = smaller + 1
	}
	for i := range rows {
		switch {
		case rows[i].RankTop <= topN:
			rows[i].Flag = fmt.Sprintf("TOP %d", topN)
		case rows[i].RankBottom <= topN:
			rows[i].Flag = fmt.Sprintf("BOTTOM %d", topN)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalTickets != b.TotalTickets {
			return a.TotalTickets > b.TotalTickets
		}
		if a.EventDate != b.EventDate {
			return a.EventDate < b.EventDate
		}
		return a.VenueID < b.VenueID
	})

	return rows, nil
}

// venueUpsellRates reports, per venue, how upsell ticket volume compares
// to concert ticket volume. Only events with at least one sales row count
// toward either side, and venues with zero concert tickets are excluded
// since no rate is meaningful there.
func venueUpsellRates(events []Event, sales []TicketSale) ([]VenueRateRow, error) {
	concerts, upsells := splitEvents(events)
	index, err := concertIndex(concerts)
	if err != nil {
		return nil, err
	}
	totals := sumSalesByEvent(sales)

	concertTickets := make(map[string]int)
	for _, concert := range concerts {
		total := totals[concert.EventID]
		if total.Rows == 0 {
			continue
		}
		concertTickets[concert.VenueID] += total.Tickets
	}

	upsellTickets := make(map[string]int)
	optionNames := make(map[string]map[string]struct{})
	for _, upsell := range upsells {
		if _, ok := index[venueDate{upsell.VenueID, upsell.EventDate}]; !ok {
			continue
		}
		total := totals[upsell.EventID]
		if total.Rows == 0 {
			continue
		}
		upsellTickets[upsell.VenueID] += total.Tickets
		names := optionNames[upsell.VenueID]
		if names == nil {
			names = make(map[string]struct{})
			optionNames[upsell.VenueID] = names
		}
		names[upsell.EventName] = struct{}{}
	}

	rows := make([]VenueRateRow, 0, len(concertTickets))
	for venueID, tickets := range concertTickets {
		if tickets <= 0 {
			continue
		}
		sold := upsellTickets[venueID]
		rows = append(rows, VenueRateRow{
			VenueID:        venueID,
			ConcertTickets: tickets,
			UpsellTickets:  sold,
			UpsellOptions:  len(optionNames[venueID]),
			UpsellRatePct:  round2(float64(sold) * 100 / float64(tickets)),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.UpsellOptions != b.UpsellOptions {
			return a.UpsellOptions > b.UpsellOptions
		}
		if a.UpsellRatePct != b.UpsellRatePct {
			return a.UpsellRatePct > b.UpsellRatePct
		}
		return a.VenueID < b.VenueID
	})

	return rows, nil
}

func buildReport(events []Event, sales []TicketSale, topN int) (Report, error) {
	pairs, orphans, err := associateConcertsAndUpsells(events)
	if err != nil {
		return Report{}, err
	}
	shows, err := rankShows(events, sales, topN)
	if err != nil {
		return Report{}, err
	}
	rates, err := venueUpsellRates(events, sales)
	if err != nil {
		return Report{}, err
	}

	concerts, upsells := splitEvents(events)
	summary := TourSummary{
		TotalEvents:    len(events),
		ConcertCount:   len(concerts),
		UpsellCount:    len(upsells),
		OrphanCount:    len(orphans),
		TotalShows:     len(concerts),
		ShowsWithSales: len(shows),
		SaleRows:       len(sales),
	}
	for _, show := range shows {
		summary.TotalTickets += show.TotalTickets
		summary.UpsellTickets += show.UpsellTickets
		if show.UpsellTickets > 0 {
			summary.ShowsWithUpsells++
		}
	}
	if summary.TotalTickets > 0 {
		summary.UpsellSharePct = round1(float64(summary.UpsellTickets) * 100 / float64(summary.TotalTickets))
	}

	return Report{
		Summary:      summary,
		Associations: pairs,
		Orphans:      orphans,
		Shows:        shows,
		VenueRates:   rates,
	}, nil
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
