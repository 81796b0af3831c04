// Command simulate runs one country through the tick engine offline and
// prints its indicators. It exits non-zero when a state invariant breaks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	persistlog "nationsim.io/internal/persistence/log"
	"nationsim.io/internal/sim/catalogs"
	"nationsim.io/internal/sim/economy"
	"nationsim.io/internal/sim/registry"
	"nationsim.io/internal/sim/tuning"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configDir   string
	tuningPath  string
	catalogPath string
	country     string
	ticks       int
	every       int
	seed        int64
	noJitter    bool
	bond        float64
	levers      map[economy.Parameter]*float64
	logDir      string
	inspect     string
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.configDir, "configs", "./configs", "config directory")
	fs.StringVar(&o.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&o.catalogPath, "catalog", "", "path to countries.json (default: <configs>/countries.json)")
	fs.StringVar(&o.country, "country", "", "catalog country to simulate")
	fs.IntVar(&o.ticks, "ticks", 360, "ticks to run")
	fs.IntVar(&o.every, "every", 0, "print a row every N ticks (default: once per month)")
	fs.Int64Var(&o.seed, "seed", 0, "jitter seed (default: tuning seed)")
	fs.BoolVar(&o.noJitter, "no_jitter", false, "run without jitter")
	fs.Float64Var(&o.bond, "bond", 0, "issue a bond of this amount before the first tick")
	fs.StringVar(&o.logDir, "log", "", "write a zstd tick log under this directory")
	fs.StringVar(&o.inspect, "inspect", "", "print a tick log written by the server or -log and exit")
	o.levers = map[economy.Parameter]*float64{}
	for _, p := range []economy.Parameter{economy.ParamInterestRate, economy.ParamTaxBurden, economy.ParamPublicServices} {
		fs.Func(string(p), "override the "+string(p)+" lever", func(v string) error {
			var f float64
			if _, err := fmt.Sscan(v, &f); err != nil {
				return err
			}
			o.levers[p] = &f
			return nil
		})
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if o.inspect != "" {
		if err := inspect(o.inspect, stdout); err != nil {
			fmt.Fprintln(stderr, "inspect:", err)
			return 1
		}
		return 0
	}
	if o.country == "" {
		fmt.Fprintln(stderr, "missing -country")
		return 2
	}
	if err := simulate(o, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		if errors.Is(err, economy.ErrInvariant) {
			return 3
		}
		return 1
	}
	return 0
}

func simulate(o options, stdout io.Writer) error {
	tp := o.tuningPath
	if tp == "" {
		tp = filepath.Join(o.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	cp := o.catalogPath
	if cp == "" {
		cp = filepath.Join(o.configDir, "countries.json")
	}
	cat, err := catalogs.Load(cp)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	seed, ok := cat.Seed(o.country)
	if !ok {
		return fmt.Errorf("unknown country %q (have %s)", o.country, strings.Join(cat.Names(), ", "))
	}

	var rng economy.Rand = economy.NoJitter{}
	if !o.noJitter {
		s := o.seed
		if s == 0 {
			s = tune.Seed
		}
		rng = rand.New(rand.NewSource(s))
	}
	eng := economy.NewEngine(tune, rng)

	now := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := eng.NewCountry(seed, now)
	if err != nil {
		return err
	}
	for p, v := range o.levers {
		if err := economy.SetParameter(c, p, *v); err != nil {
			return err
		}
	}
	if o.bond > 0 {
		if _, err := eng.IssueBond(c, o.bond, now); err != nil {
			return fmt.Errorf("bond: %w", err)
		}
	}

	var tickLog *persistlog.TickLogger
	if o.logDir != "" {
		tickLog = persistlog.NewTickLogger(o.logDir)
		defer tickLog.Close()
	}

	every := o.every
	if every <= 0 {
		every = tune.TicksPerMonth
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()
	fmt.Fprintln(tw, "tick\tgdp\tgrowth%\tinfl%\tunemp%\tpop\ttreasury\tdebt\tdebt/gdp\trating\tbonds\t")
	printRow(tw, c)

	period := time.Duration(tune.TickPeriodMs) * time.Millisecond
	for i := 1; i <= o.ticks; i++ {
		now = now.Add(period)
		eng.Tick(c, now)
		if err := eng.CheckInvariants(c); err != nil {
			printRow(tw, c)
			return fmt.Errorf("tick %d: %w", c.Ticks, err)
		}
		if tickLog != nil {
			if err := tickLog.WriteTick(tickEntry(o.country, c, now)); err != nil {
				return fmt.Errorf("tick log: %w", err)
			}
		}
		if i%every == 0 || i == o.ticks {
			printRow(tw, c)
		}
	}
	return nil
}

func printRow(w io.Writer, c *economy.Country) {
	fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f\t%.2f\t%.2f\t%.3f\t%s\t%d\t\n",
		c.Ticks, c.GDP, c.GDPGrowth, c.Inflation*100, c.Unemployment, c.Popularity,
		c.Treasury, c.PublicDebt, c.DebtToGDP(), c.CreditRating, len(c.DebtContracts))
}

func tickEntry(room string, c *economy.Country, now time.Time) registry.TickLogEntry {
	return registry.TickLogEntry{
		Room: room,
		Tick: c.Ticks,
		Time: now,
		Countries: []registry.CountryTick{{
			Name:         c.Name,
			GDP:          c.GDP,
			GDPGrowth:    c.GDPGrowth,
			Inflation:    c.Inflation,
			Unemployment: c.Unemployment,
			Popularity:   c.Popularity,
			Treasury:     c.Treasury,
			PublicDebt:   c.PublicDebt,
			CreditRating: c.CreditRating,
			Contracts:    len(c.DebtContracts),
		}},
	}
}

func inspect(dir string, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()
	fmt.Fprintln(tw, "room\ttick\tcountry\tgdp\tinfl%\tunemp%\tdebt\trating\t")
	n := 0
	err := persistlog.ReadTicks(dir, func(e registry.TickLogEntry) bool {
		for _, c := range e.Countries {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n",
				e.Room, e.Tick, c.Name, c.GDP, c.Inflation*100, c.Unemployment, c.PublicDebt, c.CreditRating)
		}
		n++
		return true
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no tick entries under %s", dir)
	}
	return nil
}
