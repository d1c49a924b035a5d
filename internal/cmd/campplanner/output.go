package campplanner

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/louisbranch/campplanner/internal/services/camps/api/campview"
	"github.com/louisbranch/campplanner/internal/services/camps/bus"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"github.com/louisbranch/campplanner/internal/services/camps/predicate"
	"github.com/louisbranch/campplanner/internal/services/camps/query"
	"github.com/louisbranch/campplanner/internal/services/camps/storage"
	"github.com/spf13/cobra"
)

func printResults(cmd *cobra.Command, ev bus.ResultsChanged, limit int, loadedAt time.Time) {
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tAGES\tPRICE\tREGISTRATION")
	shown := 0
	for _, c := range ev.Results {
		if limit > 0 && shown >= limit {
			break
		}
		view := campview.FromCamp(c, loadedAt)
		name := c.Name
		if ev.Favorited[c.ID] {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, name, c.Category, ages(c), view.Price, view.Urgency)
		shown++
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\nShowing %s of %s camps (catalog v%d)\n",
		humanize.Comma(int64(shown)), humanize.Comma(int64(ev.Total)), ev.SnapshotVersion)
}

func ages(c domain.Camp) string {
	switch {
	case c.MinAge != nil && c.MaxAge != nil:
		return fmt.Sprintf("%d-%d", *c.MinAge, *c.MaxAge)
	case c.MinAge != nil:
		return fmt.Sprintf("%d+", *c.MinAge)
	case c.MaxAge != nil:
		return fmt.Sprintf("up to %d", *c.MaxAge)
	default:
		return "-"
	}
}

func newWeeksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "weeks",
		Short: "List the summer camp weeks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWEEK\tSTART\tEND")
			for _, w := range domain.SummerWeeks() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.ID, w.Label, w.Start, w.End)
			}
			return tw.Flush()
		},
	}
}

func newUpcomingCommand(cfg *Config) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List camps whose registration opens soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, adapter, err := openCatalog(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			camps, _, err := storage.LoadAllCamps(cmd.Context(), adapter, "")
			if err != nil {
				return err
			}
			return printUpcoming(cmd.OutOrStdout(), camps, time.Now(), days)
		},
	}
	cmd.Flags().IntVar(&days, "days", predicate.UpcomingWindowDays, "window in days")
	return cmd
}

type upcomingCamp struct {
	camp domain.Camp
	reg  predicate.Registration
}

func printUpcoming(out io.Writer, camps []domain.Camp, now time.Time, days int) error {
	var list []upcomingCamp
	for _, c := range camps {
		reg := predicate.CampUrgency(c, now)
		if reg.Opens.IsZero() || reg.DaysUntil > days {
			continue
		}
		if reg.Urgency != predicate.UrgencySoon && reg.Urgency != predicate.UrgencyUpcoming && reg.Urgency != predicate.UrgencyOpen {
			continue
		}
		list = append(list, upcomingCamp{camp: c, reg: reg})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].reg.DaysUntil != list[j].reg.DaysUntil {
			return list[i].reg.DaysUntil < list[j].reg.DaysUntil
		}
		return strings.ToLower(list[i].camp.Name) < strings.ToLower(list[j].camp.Name)
	})
	if len(list) == 0 {
		_, err := fmt.Fprintf(out, "No registrations open in the next %d days\n", days)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOPENS\tWHEN")
	for _, u := range list {
		when := "today"
		if u.reg.DaysUntil > 0 {
			when = humanize.RelTime(u.reg.Opens, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.camp.ID, u.camp.Name, u.reg.Opens.Format(time.DateOnly), when)
	}
	return tw.Flush()
}

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [filter-json]",
		Short: "Print the canonical form of a filter; reads stdin without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read filter: %w", err)
				}
				data = raw
			}
			f, err := domain.DecodeFilter(data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), query.Fingerprint(f))
			return err
		},
	}
}

