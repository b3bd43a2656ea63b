package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

// manager runs one command against the backend
type manager struct {
	client  *gateway.Client
	session *session.Session
	out     io.Writer
	in      io.Reader
}

func (m *manager) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return m.list(ctx, rest)
	case "active":
		return m.active(ctx)
	case "show":
		return m.show(ctx, rest)
	case "position":
		return m.position(ctx, rest)
	case "create":
		return m.create(ctx, rest)
	case "ingest":
		return m.ingest(ctx, rest)
	case "batch":
		return m.batch(ctx, rest)
	case "status":
		return m.status(ctx, rest)
	case "complete":
		return m.complete(ctx, rest)
	case "delete":
		return m.delete(ctx, rest)
	case "logs":
		return m.logs(ctx, rest)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// flightArg returns the single positional flight number of a command.
func flightArg(args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("flight number required")
	}
	return args[0], nil
}

func (m *manager) printFlights(flights []flight.Flight) {
	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLIGHT\tAIRLINE\tROUTE\tDEPARTS\tSTATUS")
	for _, f := range flights {
		departs := "-"
		if !f.ScheduledDeparture.IsZero() {
			departs = f.ScheduledDeparture.UTC().Format("2006-01-02 15:04Z")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s-%s\t%s\t%s\n",
			f.FlightNumber, f.Airline, f.Origin.Code, f.Destination.Code, departs, f.Status)
	}
	tw.Flush()
}

func (m *manager) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	status := fs.String("status", "", "Only flights with this status")
	airline := fs.String("airline", "", "Only flights of this airline")
	limit := fs.Int("limit", 0, "Maximum number of flights")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := gateway.ListOptions{Status: flight.Status(*status), Airline: *airline, Limit: *limit}
	if opts.Status != "" && !opts.Status.Valid() {
		return fmt.Errorf("invalid status %q", *status)
	}
	flights, err := m.client.ListFlights(ctx, opts)
	if err != nil {
		return err
	}
	m.printFlights(flights)
	return nil
}

func (m *manager) active(ctx context.Context) error {
	tracks, err := m.client.ActiveTracking(ctx, 0)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLIGHT\tLAST SEEN\tPOSITION\tALTITUDE\tSPEED")
	for _, t := range tracks {
		if t.CurrentPosition == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", t.FlightNumber)
			continue
		}
		p := t.CurrentPosition
		fmt.Fprintf(tw, "%s\t%s\t%.4f,%.4f\t%.0f ft\t%.0f kts\n", t.FlightNumber,
			p.Timestamp.UTC().Format(time.RFC3339), p.Position.Latitude, p.Position.Longitude,
			p.Position.Altitude, p.Speed)
	}
	return tw.Flush()
}

func (m *manager) show(ctx context.Context, args []string) error {
	number, err := flightArg(args)
	if err != nil {
		return err
	}
	view, err := m.session.TrackFlight(ctx, number)
	if err != nil {
		return err
	}

	f := view.Flight
	fmt.Fprintf(m.out, "Flight:    %s (%s)\n", f.FlightNumber, f.Status)
	if f.Airline != "" {
		fmt.Fprintf(m.out, "Airline:   %s\n", f.Airline)
	}
	fmt.Fprintf(m.out, "Route:     %s -> %s\n", f.Origin.Label(), f.Destination.Label())

	st := view.Statistics
	fmt.Fprintf(m.out, "Samples:   %d\n", st.TotalPoints)
	if st.TotalPoints > 0 {
		fmt.Fprintf(m.out, "Distance:  %.1f NM over %.0f min\n", st.DistanceNM, st.DurationMinutes)
		fmt.Fprintf(m.out, "Speed:     %.0f avg / %.0f max kts\n", st.AverageSpeed, st.MaxSpeed)
		fmt.Fprintf(m.out, "Altitude:  %.0f ft max\n", st.MaxAltitude)
	}
	if view.Current != nil {
		fmt.Fprintf(m.out, "Current:   %s\n", view.Current)
	}
	return nil
}

func (m *manager) position(ctx context.Context, args []string) error {
	number, err := flightArg(args)
	if err != nil {
		return err
	}
	fs := newFlagSet("position")
	at := fs.String("at", "", "Time in RFC 3339 (default: now)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	t := time.Now().UTC()
	if *at != "" {
		if t, err = time.Parse(time.RFC3339, *at); err != nil {
			return fmt.Errorf("invalid time %q: %w", *at, err)
		}
	}

	// Load the path first so the query resolves against it
	if _, err := m.session.TrackFlight(ctx, number); err != nil {
		return err
	}
	s, err := m.session.PositionAt(ctx, number, t)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, s)
	return nil
}

// airportFlags registers the flags describing one airport.
func airportFlags(fs *flag.FlagSet, prefix string, a *flight.Airport) {
	fs.StringVar(&a.Code, prefix, "", "Airport code ("+prefix+")")
	fs.StringVar(&a.City, prefix+"-city", "", "Airport city")
	fs.StringVar(&a.Country, prefix+"-country", "", "Airport country")
	fs.Float64Var(&a.Coordinates.Latitude, prefix+"-lat", 0, "Airport latitude")
	fs.Float64Var(&a.Coordinates.Longitude, prefix+"-lon", 0, "Airport longitude")
}

// parseFlight builds a flight from create's flags.
func parseFlight(args []string) (flight.Flight, error) {
	var f flight.Flight
	fs := newFlagSet("create")
	fs.StringVar(&f.FlightNumber, "flight", "", "Flight number")
	fs.StringVar(&f.Airline, "airline", "", "Airline name")
	fs.StringVar(&f.AircraftType, "aircraft", "", "Aircraft type")
	airportFlags(fs, "from", &f.Origin)
	airportFlags(fs, "to", &f.Destination)
	departs := fs.String("departs", "", "Scheduled departure (RFC 3339)")
	arrives := fs.String("arrives", "", "Scheduled arrival (RFC 3339)")
	status := fs.String("status", string(flight.StatusScheduled), "Initial status")
	if err := fs.Parse(args); err != nil {
		return f, err
	}

	var err error
	if *departs != "" {
		if f.ScheduledDeparture, err = time.Parse(time.RFC3339, *departs); err != nil {
			return f, fmt.Errorf("invalid departure %q: %w", *departs, err)
		}
	}
	if *arrives != "" {
		if f.ScheduledArrival, err = time.Parse(time.RFC3339, *arrives); err != nil {
			return f, fmt.Errorf("invalid arrival %q: %w", *arrives, err)
		}
	}
	f.Status = flight.Status(*status)
	return f, nil
}

func (m *manager) create(ctx context.Context, args []string) error {
	f, err := parseFlight(args)
	if err != nil {
		return err
	}
	created, msg, err := m.session.CreateFlight(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %s\n", created.FlightNumber, orDefault(msg, "flight created"))
	return nil
}

// readRecords decodes the JSON in path ("-" or empty for stdin) as either
// one record or an array of records.
func (m *manager) readRecords(path string) ([]map[string]interface{}, error) {
	r := m.in
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	raw = json.RawMessage(strings.TrimSpace(string(raw)))

	if strings.HasPrefix(string(raw), "[") {
		var records []map[string]interface{}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}
	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return []map[string]interface{}{record}, nil
}

func (m *manager) ingestFlags(name string, args []string) (string, []map[string]interface{}, error) {
	fs := newFlagSet(name)
	number := fs.String("flight", "", "Flight number")
	file := fs.String("file", "-", "JSON input file")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if *number == "" {
		return "", nil, errors.New("-flight is required")
	}
	records, err := m.readRecords(*file)
	return *number, records, err
}

func (m *manager) ingest(ctx context.Context, args []string) error {
	number, records, err := m.ingestFlags("ingest", args)
	if err != nil {
		return err
	}
	if len(records) != 1 {
		return fmt.Errorf("ingest takes exactly one record, got %d (use batch)", len(records))
	}

	// Track first so a completed flight is refused locally
	if _, err := m.session.TrackFlight(ctx, number); err != nil {
		return err
	}
	s, msg, err := m.session.Ingest(ctx, number, records[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %s\n", s, orDefault(msg, "sample ingested"))
	return nil
}

func (m *manager) batch(ctx context.Context, args []string) error {
	number, records, err := m.ingestFlags("batch", args)
	if err != nil {
		return err
	}
	if _, err := m.session.TrackFlight(ctx, number); err != nil {
		return err
	}

	report, err := m.session.IngestBatch(ctx, number, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %d accepted, %d rejected\n",
		report.FlightNumber, report.Accepted, len(report.Rejections))
	for _, r := range report.Rejections {
		fmt.Fprintf(m.out, "  record %d: %v\n", r.Index, r.Err)
	}
	if report.Message != "" {
		fmt.Fprintf(m.out, "backend: %s\n", report.Message)
	}
	if report.Accepted == 0 && len(report.Rejections) > 0 {
		return report.Err()
	}
	return nil
}

func (m *manager) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: status <flight> <scheduled|active|completed>")
	}
	number, status := args[0], flight.Status(args[1])
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", args[1])
	}

	// The lifecycle needs the held status to refuse backwards moves
	if _, err := m.session.TrackFlight(ctx, number); err != nil {
		return err
	}
	f, err := m.session.UpdateStatus(ctx, number, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %s\n", f.FlightNumber, f.Status)
	return nil
}

func (m *manager) complete(ctx context.Context, args []string) error {
	number, err := flightArg(args)
	if err != nil {
		return err
	}
	// Completion needs the flight held by the lifecycle
	if _, err := m.session.TrackFlight(ctx, number); err != nil {
		return err
	}
	msg, err := m.session.CompleteFlight(ctx, number)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %s\n", flight.NormalizeFlightNumber(number), orDefault(msg, "flight completed"))
	return nil
}

func (m *manager) delete(ctx context.Context, args []string) error {
	number, err := flightArg(args)
	if err != nil {
		return err
	}
	msg, err := m.client.DeleteFlight(ctx, number)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "%s: %s\n", flight.NormalizeFlightNumber(number), orDefault(msg, "flight deleted"))
	return nil
}

func (m *manager) logs(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		logs, err := m.client.FlightLogs(ctx)
		if err != nil {
			return err
		}
		m.printLogs(logs)
		return nil
	case "latest":
		number, err := flightArg(args)
		if err != nil {
			return err
		}
		l, err := m.client.LatestFlightLog(ctx, number)
		if err != nil {
			return err
		}
		m.printLogs([]flight.FlightLog{l})
		return nil
	case "all":
		number, err := flightArg(args)
		if err != nil {
			return err
		}
		logs, err := m.client.AllFlightLogs(ctx, number)
		if err != nil {
			return err
		}
		m.printLogs(logs)
		return nil
	case "stats":
		number, err := flightArg(args)
		if err != nil {
			return err
		}
		st, err := m.client.FlightStatistics(ctx, number)
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "Flight:    %s\n", st.FlightNumber)
		fmt.Fprintf(m.out, "Points:    %d\n", st.TotalPoints)
		fmt.Fprintf(m.out, "Distance:  %.1f NM\n", st.DistanceNM)
		fmt.Fprintf(m.out, "Duration:  %.0f min\n", st.DurationMinutes)
		fmt.Fprintf(m.out, "Speed:     %.0f avg / %.0f max kts\n", st.AverageSpeed, st.MaxSpeed)
		fmt.Fprintf(m.out, "Altitude:  %.0f ft max\n", st.MaxAltitude)
		return nil
	case "delete":
		if len(args) == 0 {
			return errors.New("log id required")
		}
		msg, err := m.client.DeleteFlightLog(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "%s: %s\n", args[0], orDefault(msg, "log deleted"))
		return nil
	}
	return fmt.Errorf("unknown logs command %q", sub)
}

func (m *manager) printLogs(logs []flight.FlightLog) {
	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFLIGHT\tPOINTS\tSTART\tEND")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.ID, l.FlightNumber, len(l.Path),
			l.StartTime.UTC().Format(time.RFC3339), l.EndTime.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
