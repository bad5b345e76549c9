package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/geoloc"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/terminal"
	"github.com/i474232898/weather-dashboard/internal/view"
)

var (
	address string
	noClear bool
)

var errUnknownCommand = errors.New("unknown command")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the dashboard in the terminal",
	Long: `Run the dashboard in the terminal. Commands are read from stdin:

  search <place>        load the forecast for a place
  locate                detect the current location
  day <key>             open the hourly detail of a day
  hover temp|precip <%> move the chart marker to a position (0-100)
  leave temp|precip     hide the chart marker
  close                 close the open dialog
  radius <miles>        set the alert radius
  select|delete <key>   act on a recent location
  refresh [key]         refresh a location's cached forecast
  switch | stay         answer the location switch prompt
  reload                reload the page
  quit`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&address, "address", "a", "", "Start with the forecast for this place")
	watchCmd.Flags().BoolVar(&noClear, "no-clear", false, "Do not clear the screen between frames")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, store, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New()
	defer sched.Stop()

	dcfg := view.Config{
		Backend:       client,
		Prefs:         store,
		Ladder:        ladder(cfg),
		Timers:        sched,
		Renderer:      terminal.New(cmd.OutOrStdout(), !noClear),
		AutoRefresh:   cfg.AutoRefresh,
		ClockInterval: cfg.ClockInterval,
	}
	target := "/"
	if c, ok := deviceCoordinate(cmd); ok {
		dcfg.Locator = geoloc.Fixed{Coord: c}
		dcfg.Permissions = geoloc.StaticPermissions(geoloc.PermissionGranted)
	}
	if address != "" {
		target = "/?" + url.Values{"address": {address}}.Encode()
	}

	d := view.New(ctx, dcfg)
	defer d.Close()

	if err := d.Load(ctx, target); err != nil {
		log.Printf("ERROR: initial load: %v", err)
	}

	lines := make(chan string)
	go scanLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "quit" {
				return nil
			}
			if err := dispatch(ctx, d, line); err != nil {
				log.Printf("ERROR: %s: %v", line, err)
			}
		}
	}
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func dispatch(ctx context.Context, d *view.Dashboard, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := fields[0], fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch verb {
	case "search":
		return d.Search(ctx, strings.Join(args, " "))
	case "locate":
		_, err := d.UseCurrentLocation()
		return err
	case "day":
		return d.OpenDay(arg(0))
	case "hover":
		pct, err := strconv.ParseFloat(arg(1), 64)
		if err != nil {
			return fmt.Errorf("position: %w", err)
		}
		_, err = d.Hover(chartKind(arg(0)), pct, chart.Box{Width: 100}, 20)
		return err
	case "leave":
		return d.Leave(chartKind(arg(0)))
	case "close":
		return d.CloseModal()
	case "radius":
		r, err := strconv.Atoi(arg(0))
		if err != nil {
			return fmt.Errorf("radius: %w", err)
		}
		return d.SetAlertRadius(r)
	case "select", "delete":
		return d.LocationAction(ctx, arg(0), verb)
	case "refresh":
		if err := d.OpenRefresh(arg(0)); err != nil {
			return err
		}
		return d.RefreshLocation(ctx)
	case "switch":
		return d.ConfirmSwitch(ctx)
	case "stay":
		return d.DismissSwitch()
	case "reload":
		return d.Reload(ctx)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, verb)
}

func chartKind(s string) view.ChartKind {
	if s == "precip" {
		return view.ChartPrecip
	}
	return view.ChartTemperature
}
