package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
)

type scheduleOptions struct {
	value  string
	months int
	start  string
	end    string
	locale string
}

func newScheduleCmd() *cobra.Command {
	var opts scheduleOptions
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the straight-line depreciation schedule of an asset",
		Example: "  rvuctl schedule --value 12000 --start 2025-01-01 --months 60\n" +
			"  rvuctl schedule --value 12000 --start 2025-01-01 --end 2030-01-01",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.value, "value", "", "acquisition value")
	cmd.Flags().IntVar(&opts.months, "months", 0, "useful life in months")
	cmd.Flags().StringVar(&opts.start, "start", "", "depreciation start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "end of useful life (YYYY-MM-DD), instead of --months")
	cmd.Flags().StringVar(&opts.locale, "locale", "pt-BR", "number formatting locale")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("start")
	cmd.MarkFlagsMutuallyExclusive("months", "end")
	return cmd
}

func runSchedule(w io.Writer, opts scheduleOptions) error {
	value, err := decimal.NewFromString(opts.value)
	if err != nil {
		return fmt.Errorf("invalid --value %q", opts.value)
	}
	start, err := time.Parse(time.DateOnly, opts.start)
	if err != nil {
		return fmt.Errorf("invalid --start %q", opts.start)
	}
	months := opts.months
	if opts.end != "" {
		end, err := time.Parse(time.DateOnly, opts.end)
		if err != nil {
			return fmt.Errorf("invalid --end %q", opts.end)
		}
		months = depreciation.MonthsBetween(start, end)
	}
	if months <= 0 || !value.IsPositive() {
		return errors.New("value and useful life must be positive")
	}
	tag, err := language.Parse(opts.locale)
	if err != nil {
		return fmt.Errorf("invalid --locale %q", opts.locale)
	}
	printer := message.NewPrinter(tag)
	money := func(d decimal.Decimal) string {
		return printer.Sprintf("%.2f", d.InexactFloat64())
	}

	rows := depreciation.Schedule(value, months, start)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Period", "Opening", "Charge", "Closing"})
	for i, r := range rows {
		t.AppendRow(table.Row{i + 1, r.Period.Format("2006-01"), money(r.Opening), money(r.Charge), money(r.Closing)})
	}
	t.AppendFooter(table.Row{"", "Total", "", money(depreciation.Total(rows)), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
	return nil
}
