package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/energytrack/energytrack/internal/energytracker"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	client, err := energytracker.NewClient(energytracker.Config{
		BaseURL: os.Getenv("ENERGYTRACK_API_BASE_URL"),
		Token:   os.Getenv("ENERGYTRACK_API_TOKEN"),
	}, nil)
	if err != nil {
		fatal("client", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "devices":
		devicesCmd(ctx, client, os.Args[2:])
	case "readings":
		readingsCmd(ctx, client, os.Args[2:])
	case "submit":
		submitCmd(ctx, client, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func devicesCmd(ctx context.Context, client *energytracker.Client, args []string) {
	flags := flag.NewFlagSet("devices", flag.ExitOnError)
	name := flags.String("name", "", "filter by name substring")
	folder := flags.String("folder", "", "filter by folder path prefix")
	updatedAfter := flags.String("updated-after", "", "filter by last update (RFC3339)")
	updatedBefore := flags.String("updated-before", "", "filter by last update (RFC3339)")
	asJSON := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args)

	filter := energytracker.DeviceFilter{Name: *name, FolderPath: *folder}
	filter.UpdatedAfter = parseTimeFlag("updated-after", *updatedAfter)
	filter.UpdatedBefore = parseTimeFlag("updated-before", *updatedBefore)

	devices, err := client.ListDevices(ctx, filter)
	if err != nil {
		fatal("list devices", err)
	}

	if *asJSON {
		printJSON(devices)
		return
	}

	rows := [][]string{{"ID", "NAME", "FOLDER", "LAST UPDATED"}}
	for _, device := range devices {
		rows = append(rows, []string{device.ID, device.Name, device.FolderPath, device.LastUpdatedAt})
	}
	table(rows)
}

func readingsCmd(ctx context.Context, client *energytracker.Client, args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("readings", fmt.Errorf("missing device id"))
	}
	deviceID := args[0]

	flags := flag.NewFlagSet("readings", flag.ExitOnError)
	meter := flags.String("meter", "", "filter by meter id")
	from := flags.String("from", "", "readings from (RFC3339)")
	to := flags.String("to", "", "readings until (RFC3339)")
	sortOrder := flags.String("sort", "desc", "sort order: asc or desc")
	asJSON := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args[1:])

	filter := energytracker.ReadingFilter{
		MeterID: *meter,
		Sort:    energytracker.SortOrder(*sortOrder),
	}
	filter.From = parseTimeFlag("from", *from)
	filter.To = parseTimeFlag("to", *to)

	readings, err := client.ListReadings(ctx, deviceID, filter)
	if err != nil {
		fatal("list readings", err)
	}

	if *asJSON {
		printJSON(readings)
		return
	}

	rows := [][]string{{"TIMESTAMP", "VALUE", "ROLLOVER", "METER", "NOTE"}}
	for _, reading := range readings {
		rows = append(rows, []string{
			reading.Timestamp,
			reading.Value,
			fmt.Sprintf("%d", reading.RolloverOffset),
			reading.MeterID,
			reading.Note,
		})
	}
	table(rows)
}

func submitCmd(ctx context.Context, client *energytracker.Client, args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("submit", fmt.Errorf("missing device id"))
	}
	deviceID := args[0]

	flags := flag.NewFlagSet("submit", flag.ExitOnError)
	value := flags.Float64("value", 0, "meter reading value")
	timestamp := flags.String("timestamp", "", "reading timestamp (RFC3339, default now)")
	allowRounding := flags.Bool("allow-rounding", false, "allow the server to round to meter precision")
	_ = flags.Parse(args[1:])

	when := time.Now()
	if *timestamp != "" {
		when = parseTimeFlag("timestamp", *timestamp)
	}

	if err := client.SubmitReading(ctx, deviceID, *value, when, *allowRounding); err != nil {
		fatal("submit reading", err)
	}
	fmt.Printf("submitted %g for %s\n", *value, deviceID)
}

func parseTimeFlag(name, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		fatal(name, err)
	}
	return parsed
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: energytrack-cli <command> [flags]

commands:
  devices   [-name -folder -updated-after -updated-before -json]
  readings  <deviceID> [-meter -from -to -sort -json]
  submit    <deviceID> -value <v> [-timestamp -allow-rounding]

environment:
  ENERGYTRACK_API_TOKEN     bearer token (required)
  ENERGYTRACK_API_BASE_URL  API base URL (optional)`)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
