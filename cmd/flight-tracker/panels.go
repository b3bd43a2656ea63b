package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/render/grid"
)

// infoWidth is the width of the side panel in cells
const infoWidth = 36

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle = map[flight.Status]lipgloss.Style{
		flight.StatusScheduled: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		flight.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		flight.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-11s", label)) + valueStyle.Render(value) + "\n"
}

// renderInfo renders the flight details, the highlighted position and the
// last clicked marker.
func (m model) renderInfo() string {
	var b strings.Builder
	panel := lipgloss.NewStyle().Width(infoWidth)

	if m.loading {
		b.WriteString(labelStyle.Render("Loading..."))
		b.WriteString("\n\n")
	}
	if m.view == nil {
		b.WriteString(labelStyle.Render("No flight loaded. Press / to search."))
		return panel.Render(b.String())
	}

	f := m.view.Flight
	b.WriteString(headerStyle.Render("Flight"))
	b.WriteString("\n")
	b.WriteString(row("Number", f.FlightNumber))
	if f.Airline != "" {
		b.WriteString(row("Airline", f.Airline))
	}
	if f.AircraftType != "" {
		b.WriteString(row("Aircraft", f.AircraftType))
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-11s", "Status")))
	b.WriteString(statusStyle[f.Status].Render(string(f.Status)))
	b.WriteString("\n")
	if l := f.Origin.Label(); l != "" {
		b.WriteString(row("From", l))
	}
	if l := f.Destination.Label(); l != "" {
		b.WriteString(row("To", l))
	}
	if !f.ScheduledDeparture.IsZero() {
		b.WriteString(row("Departs", f.ScheduledDeparture.UTC().Format("2006-01-02 15:04Z")))
	}
	if !f.ScheduledArrival.IsZero() {
		b.WriteString(row("Arrives", f.ScheduledArrival.UTC().Format("2006-01-02 15:04Z")))
	}

	b.WriteString("\n")
	st := m.view.Statistics
	b.WriteString(headerStyle.Render("Path"))
	b.WriteString("\n")
	b.WriteString(row("Samples", fmt.Sprintf("%d", st.TotalPoints)))
	if st.TotalPoints > 0 {
		b.WriteString(row("Distance", fmt.Sprintf("%.0f NM", st.DistanceNM)))
		b.WriteString(row("Duration", fmt.Sprintf("%.0f min", st.DurationMinutes)))
		b.WriteString(row("Max alt", fmt.Sprintf("%.0f ft", st.MaxAltitude)))
	}

	b.WriteString("\n")
	pos, heading := m.view.Current, "Current position"
	if m.position != nil {
		pos, heading = m.position, "Position at query"
	}
	b.WriteString(headerStyle.Render(heading))
	b.WriteString("\n")
	if pos == nil {
		b.WriteString(labelStyle.Render("No position reported"))
		b.WriteString("\n")
	} else {
		b.WriteString(row("Time", pos.Timestamp.UTC().Format("15:04:05Z")))
		if m.position == nil {
			b.WriteString(row("Age", m.now.Sub(pos.Timestamp).Truncate(time.Second).String()))
		}
		b.WriteString(row("Lat/Lon", fmt.Sprintf("%.4f, %.4f", pos.Position.Latitude, pos.Position.Longitude)))
		b.WriteString(row("Altitude", fmt.Sprintf("%.0f ft", pos.Position.Altitude)))
		b.WriteString(row("Speed", fmt.Sprintf("%.0f kts", pos.Speed)))
		b.WriteString(row("Heading", fmt.Sprintf("%.0f° %c", pos.Heading, grid.HeadingGlyph(pos.Heading))))
	}

	if m.clicked != nil {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Marker " + m.clicked.Key.String()))
		b.WriteString("\n")
		if m.clicked.Label != "" {
			b.WriteString(row("Label", m.clicked.Label))
		}
		keys := make([]string, 0, len(m.clicked.Metadata))
		for k := range m.clicked.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(row(k, m.clicked.Metadata[k]))
		}
	}

	return panel.Render(b.String())
}

func (m model) renderLegend() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	return style.Render(fmt.Sprintf("%c route  %c sample  %c origin  %c destination  %c aircraft  %c heading",
		grid.GlyphRoute, grid.GlyphSample, grid.GlyphOrigin, grid.GlyphDestination,
		grid.HeadingGlyph(45), grid.GlyphVector))
}

func (m model) renderActiveList() string {
	var list strings.Builder

	list.WriteString(headerStyle.Render("Active Flights:"))
	list.WriteString("\n")

	if m.loading {
		list.WriteString(labelStyle.Render("  Loading..."))
		list.WriteString("\n")
		return list.String()
	}
	if len(m.active) == 0 {
		list.WriteString(labelStyle.Render("  No active flights"))
		list.WriteString("\n")
		return list.String()
	}

	for i, f := range m.active {
		line := fmt.Sprintf("%-8s %-12s %s → %s", f.FlightNumber, f.Airline, f.Origin.Code, f.Destination.Code)
		if i == m.selected {
			list.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render("> " + line))
		} else {
			list.WriteString("  " + line)
		}
		list.WriteString("\n")
	}
	return list.String()
}
