// =============================================================================
// Fradma Dashboard - Report Commands
// =============================================================================
//
// COMMAND USAGE:
//   fradma report kpi     [files...] [--agent A] [--line L] [--recent N]
//   fradma report yoy     [files...] [--base 2023 --target 2024]
//   fradma report heatmap [files...] [--period monthly] [--top 10] [--growth]
//   fradma report aging   [files...] [--as-of 2024-06-30]
//
// ROW SOURCES (in order of precedence):
//   --from-store : rows already stored by 'fradma ingest'
//   --from-csv   : a canonical CSV written by 'fradma reconcile --export-csv'
//   files...     : spreadsheets reconciled on the fly
//
// Every report is printed as a table. --out also writes it as a workbook.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/export"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/report"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

var (
	fromStore bool
	fromCSV   string
	outFile   string

	kpiAgent  string
	kpiLine   string
	kpiRecent int

	yoyBase   int
	yoyTarget int

	hmPeriod string
	hmFrom   string
	hmTo     string
	hmLines  []string
	hmTop    int
	hmMin    float64
	hmMax    float64
	hmGrowth bool

	agingAsOf string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute dashboard reports",
	Long: `The report commands compute the dashboard's KPI, year-over-year, heatmap
and receivables aging reports from spreadsheets, a canonical CSV or the
rows already stored.`,
}

var kpiCmd = &cobra.Command{
	Use:   "kpi [files...]",
	Short: "Total sales, operations and rankings by agent and product line",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := loadReportRows(cmd, args)
		if err != nil {
			return err
		}
		conv, err := reconcile.NewConverter(mainConfig)
		if err != nil {
			return err
		}
		kpi, err := report.BuildKPI(rows, conv, report.KPIOptions{
			Agent:       kpiAgent,
			ProductLine: kpiLine,
			Recent:      kpiRecent,
		})
		if err != nil {
			return err
		}
		printKPI(cmd.OutOrStdout(), kpi)
		return saveWorkbook(cmd, func() (*excelize.File, error) { return export.KPIWorkbook(kpi) })
	},
}

var yoyCmd = &cobra.Command{
	Use:   "yoy [files...]",
	Short: "Year by month pivot with an optional two-year comparison",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := loadReportRows(cmd, args)
		if err != nil {
			return err
		}
		pivot := report.PivotYearMonth(rows)

		var cmp *report.Comparison
		if yoyBase != 0 || yoyTarget != 0 {
			if yoyBase == 0 || yoyTarget == 0 {
				return errors.New("--base and --target must be given together")
			}
			if cmp, err = report.CompareYears(pivot, yoyBase, yoyTarget); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		printPivot(out, pivot)
		if cmp != nil {
			fmt.Fprintln(out)
			printComparison(out, cmp)
		}
		return saveWorkbook(cmd, func() (*excelize.File, error) { return export.YoYWorkbook(pivot, cmp) })
	},
}

var heatmapCmd = &cobra.Command{
	Use:   "heatmap [files...]",
	Short: "Sales by product line and period",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := heatmapOptions(cmd)
		if err != nil {
			return err
		}
		rows, err := loadReportRows(cmd, args)
		if err != nil {
			return err
		}
		hm, err := report.BuildHeatmap(rows, opts)
		if err != nil {
			return err
		}
		printHeatmap(cmd.OutOrStdout(), hm)
		return saveWorkbook(cmd, func() (*excelize.File, error) { return export.HeatmapWorkbook(hm) })
	},
}

var agingCmd = &cobra.Command{
	Use:   "aging [files...]",
	Short: "Receivables balance by age bucket, customer and agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts report.AgingOptions
		if agingAsOf != "" {
			asOf, err := time.Parse(time.DateOnly, agingAsOf)
			if err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
			opts.AsOf = asOf
		}
		rows, err := loadReportRows(cmd, args)
		if err != nil {
			return err
		}
		aging := report.BuildAging(rows, opts)
		printAging(cmd.OutOrStdout(), aging)
		return saveWorkbook(cmd, func() (*excelize.File, error) { return export.AgingWorkbook(aging) })
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(kpiCmd, yoyCmd, heatmapCmd, agingCmd)

	pf := reportCmd.PersistentFlags()
	pf.BoolVar(&fromStore, "from-store", false, "Read the rows stored by 'fradma ingest'")
	pf.StringVar(&fromCSV, "from-csv", "", "Read rows from a canonical CSV")
	pf.StringVar(&outFile, "out", "", "Also write the report to this workbook (.xlsx)")
	pf.StringVar(&sheetName, "sheet", "", "Force a workbook sheet when reading spreadsheets")

	kpiCmd.Flags().StringVar(&kpiAgent, "agent", "", "Only this sales agent")
	kpiCmd.Flags().StringVar(&kpiLine, "line", "", "Only this product line")
	kpiCmd.Flags().IntVar(&kpiRecent, "recent", report.DefaultRecent, "Number of recent sales listed")

	yoyCmd.Flags().IntVar(&yoyBase, "base", 0, "Base year of the comparison")
	yoyCmd.Flags().IntVar(&yoyTarget, "target", 0, "Year compared against the base")

	hf := heatmapCmd.Flags()
	hf.StringVar(&hmPeriod, "period", string(report.PeriodMonthly), "monthly, quarterly, yearly or custom")
	hf.StringVar(&hmFrom, "from", "", "First date included (YYYY-MM-DD)")
	hf.StringVar(&hmTo, "to", "", "Last date included (YYYY-MM-DD)")
	hf.StringSliceVar(&hmLines, "lines", nil, "Only these product lines")
	hf.IntVar(&hmTop, "top", 0, "Keep the N lines with the highest total")
	hf.Float64Var(&hmMin, "min", 0, "Hide cells below this value")
	hf.Float64Var(&hmMax, "max", 0, "Hide cells above this value")
	hf.BoolVar(&hmGrowth, "growth", false, "Compute growth against the same period a year earlier")

	agingCmd.Flags().StringVar(&agingAsOf, "as-of", "", "Date balances are aged against (YYYY-MM-DD); default today")
}

// loadReportRows returns the canonical rows for a report from the store, a
// canonical CSV or the given spreadsheets.
func loadReportRows(cmd *cobra.Command, args []string) ([]types.CanonicalRow, error) {
	switch {
	case fromStore:
		store, err := openStore(cmd.Context())
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadRows(cmd.Context())

	case fromCSV != "":
		return export.ReadCSVFile(fromCSV)
	}

	paths, err := inputPaths(args)
	if err != nil {
		return nil, err
	}
	svc, err := newService(nil)
	if err != nil {
		return nil, err
	}

	var rows []types.CanonicalRow
	for _, path := range paths {
		table, summary, err := svc.Reconcile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if n := len(summary.Warnings()); n > 0 {
			logger.Info("reconciled with warnings", "file", path, "warnings", n)
		}
		rows = append(rows, table.Rows...)
	}
	return rows, nil
}

func heatmapOptions(cmd *cobra.Command) (report.HeatmapOptions, error) {
	period, err := report.ParsePeriod(hmPeriod)
	if err != nil {
		return report.HeatmapOptions{}, err
	}
	opts := report.HeatmapOptions{
		Period: period,
		Lines:  hmLines,
		TopN:   hmTop,
		Growth: hmGrowth,
	}
	if opts.From, err = parseDateFlag("from", hmFrom); err != nil {
		return opts, err
	}
	if opts.To, err = parseDateFlag("to", hmTo); err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("min") {
		opts.Min = &hmMin
	}
	if cmd.Flags().Changed("max") {
		opts.Max = &hmMax
	}
	return opts, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func saveWorkbook(cmd *cobra.Command, build func() (*excelize.File, error)) error {
	if outFile == "" {
		return nil
	}
	f, err := build()
	if err != nil {
		return err
	}
	if err := export.Save(f, outFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nWorkbook written to %s\n", outFile)
	return nil
}

// =============================================================================
// TEXT OUTPUT
// =============================================================================

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64) + "%"
}

func printGroups(w io.Writer, title string, groups []report.Group) {
	fmt.Fprintf(w, "\n%s\n", title)
	tw := newTable(w)
	fmt.Fprintln(tw, "\tTOTAL\tOPERATIONS\t")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", g.Key, money(g.Total), g.Operations)
	}
	tw.Flush()
}

func printKPI(w io.Writer, kpi *report.KPI) {
	fmt.Fprintf(w, "Total USD:   %s\n", money(kpi.TotalUSD))
	fmt.Fprintf(w, "Total MN:    %s\n", money(kpi.TotalMN))
	fmt.Fprintf(w, "Operations:  %d (null amounts: %d)\n", kpi.Operations, kpi.NullAmounts)
	fmt.Fprintf(w, "Agents: %d  Product lines: %d\n", len(kpi.Agents), len(kpi.ProductLines))
	if kpi.FallbackRows > 0 || kpi.UnratedRows > 0 {
		fmt.Fprintf(w, "Fallback rate rows: %d  Unrated rows: %d\n", kpi.FallbackRows, kpi.UnratedRows)
	}
	printGroups(w, "By agent", kpi.ByAgent)
	printGroups(w, "By product line", kpi.ByLine)

	if len(kpi.Recent) > 0 {
		fmt.Fprintf(w, "\nMost recent %d\n", len(kpi.Recent))
		tw := newTable(w)
		fmt.Fprintln(tw, "DATE\tINVOICE\tCUSTOMER\tAGENT\tAMOUNT USD\t")
		for _, row := range kpi.Recent {
			date := ""
			if row.Date != nil {
				date = row.Date.Format(time.DateOnly)
			}
			amount := "-"
			if row.AmountUSD != nil {
				amount = strconv.FormatFloat(*row.AmountUSD, 'f', 2, 64)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", date, row.InvoiceID, row.Customer, row.Agent, amount)
		}
		tw.Flush()
	}
}

func printPivot(w io.Writer, pivot *report.YearMonthPivot) {
	tw := newTable(w)
	fmt.Fprint(tw, "YEAR\t")
	for _, m := range export.MonthNames {
		fmt.Fprintf(tw, "%s\t", m)
	}
	fmt.Fprintln(tw, "TOTAL\t")
	for _, y := range pivot.Years {
		fmt.Fprintf(tw, "%d\t", y.Year)
		for _, v := range y.Months {
			fmt.Fprintf(tw, "%s\t", money(v))
		}
		fmt.Fprintf(tw, "%s\t\n", money(y.Total))
	}
	tw.Flush()
	if pivot.Undated > 0 || pivot.NullAmounts > 0 {
		fmt.Fprintf(w, "Undated rows: %d  Null amounts: %d\n", pivot.Undated, pivot.NullAmounts)
	}
}

func printComparison(w io.Writer, cmp *report.Comparison) {
	fmt.Fprintf(w, "%d vs %d\n", cmp.TargetYear, cmp.BaseYear)
	tw := newTable(w)
	fmt.Fprintf(tw, "MONTH\t%d\t%d\tDIFFERENCE\tVARIATION\t\n", cmp.BaseYear, cmp.TargetYear)
	for _, d := range cmp.Months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			export.MonthNames[d.Month-1], money(d.Base), money(d.Target), money(d.Difference), pct(d.Variation))
	}
	t := cmp.Total
	fmt.Fprintf(tw, "Total\t%s\t%s\t%s\t%s\t\n", money(t.Base), money(t.Target), money(t.Difference), pct(t.Variation))
	tw.Flush()
}

func printHeatmap(w io.Writer, hm *report.Heatmap) {
	tw := newTable(w)
	fmt.Fprintf(tw, "LINE\t%s\tTOTAL\t\n", strings.Join(hm.Periods, "\t"))
	for i, line := range hm.Lines {
		fmt.Fprintf(tw, "%s\t", line)
		for _, cell := range hm.Cells[i] {
			switch {
			case cell.Masked:
				fmt.Fprint(tw, "\t")
			case cell.Growth != nil && cell.Growth.New:
				fmt.Fprintf(tw, "%s %s\t", money(cell.Value), export.NewMarker)
			case cell.Growth != nil:
				fmt.Fprintf(tw, "%s (%s)\t", money(cell.Value), pct(cell.Growth.Pct))
			default:
				fmt.Fprintf(tw, "%s\t", money(cell.Value))
			}
		}
		fmt.Fprintf(tw, "%s\t\n", money(hm.LineTotals[i]))
	}
	tw.Flush()
	if len(hm.NewLines) > 0 {
		fmt.Fprintf(w, "New lines: %s\n", strings.Join(hm.NewLines, ", "))
	}
	if hm.Undated > 0 || hm.NullAmounts > 0 {
		fmt.Fprintf(w, "Undated rows: %d  Null amounts: %d\n", hm.Undated, hm.NullAmounts)
	}
}

func printAging(w io.Writer, aging *report.Aging) {
	fmt.Fprintf(w, "As of:          %s\n", aging.AsOf.Format(time.DateOnly))
	fmt.Fprintf(w, "Total balance:  %s\n", money(aging.TotalBalance))
	fmt.Fprintf(w, "Customers: %d  Agents: %d  Lines: %d\n", aging.Customers, aging.Agents, aging.Lines)
	if aging.NullBalances > 0 {
		fmt.Fprintf(w, "Null balances:  %d\n", aging.NullBalances)
	}

	fmt.Fprintln(w, "\nBy age")
	tw := newTable(w)
	fmt.Fprintln(tw, "\tTOTAL\tOPERATIONS\t")
	for _, b := range aging.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", b.Bucket, money(b.Total), b.Operations)
	}
	tw.Flush()

	printGroups(w, "By status", aging.ByStatus)
	printGroups(w, "By customer", aging.ByCustomer)
	printGroups(w, "By agent", aging.ByAgent)
	printGroups(w, "By product line", aging.ByLine)
}
