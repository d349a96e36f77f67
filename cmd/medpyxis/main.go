// Package main provides the medpyxis command line tool: periodicity parsing,
// the dose calculator and Redpanda topic setup.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/config"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/dosecalc"
	"github.com/medchart/medpyxis/internal/infrastructure/redpanda"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "medpyxis",
		Short:         "MedPyxis scheduling and dose calculation tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("json", false, "Print results as JSON")

	root.AddCommand(parseCmd())
	root.AddCommand(calcCmd())
	root.AddCommand(topicsCmd())
	return root
}

func printResult(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}

// ParseOutput is what the parse command reports
type ParseOutput struct {
	Text        string          `json:"text"`
	Interval    dosing.Interval `json:"interval"`
	OneTime     bool            `json:"one_time"`
	DosesPerDay *float64        `json:"doses_per_day,omitempty"`
	NextDue     *time.Time      `json:"next_due,omitempty"`
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <periodicity>",
		Short: "Parse a free-text periodicity",
		Example: `  medpyxis parse "every 6 hours"
  medpyxis parse "q8h" --last 2026-03-14T08:00:00Z`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			lastRaw, _ := cmd.Flags().GetString("last")

			iv := dosing.ParseInterval(text)
			res := ParseOutput{Text: text, Interval: iv, OneTime: dosing.IsOneTime(text)}
			if n, ok := dosing.DosesPerDay(iv); ok {
				res.DosesPerDay = &n
			}
			if lastRaw != "" {
				last, err := time.Parse(time.RFC3339, lastRaw)
				if err != nil {
					return fmt.Errorf("--last: %w", err)
				}
				if iv.Schedulable() {
					due := last.Add(iv.Every)
					res.NextDue = &due
				}
			}

			return printResult(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "kind:      %s\n", iv.Kind)
				if iv.Schedulable() {
					fmt.Fprintf(w, "every:     %s\n", iv.Every)
				}
				if res.DosesPerDay != nil {
					fmt.Fprintf(w, "per day:   %g\n", *res.DosesPerDay)
				}
				fmt.Fprintf(w, "one-time:  %t\n", res.OneTime)
				if res.NextDue != nil {
					fmt.Fprintf(w, "next due:  %s\n", res.NextDue.Format(time.RFC3339))
				}
			})
		},
	}
	cmd.Flags().String("last", "", "Time of the last dose (RFC 3339) to compute the next due time")
	return cmd
}

func calcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Dose calculator",
	}

	basic := &cobra.Command{
		Use:   "basic",
		Short: "Ordered dose over dose on hand, times volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			q, err := quantityFlags(cmd, "ordered", "stock", "volume")
			if err != nil {
				return err
			}
			orderedUnit, _ := f.GetString("ordered-unit")
			stockUnit, _ := f.GetString("stock-unit")
			volumeUnit, _ := f.GetString("volume-unit")
			return printCalc(cmd)(dosecalc.BasicDose(q[0], orderedUnit, q[1], stockUnit, q[2], volumeUnit))
		},
	}
	basic.Flags().String("ordered", "", "Ordered dose")
	basic.Flags().String("ordered-unit", "mg", "Ordered dose unit (g, mg, mcg)")
	basic.Flags().String("stock", "", "Dose on hand")
	basic.Flags().String("stock-unit", "mg", "Dose on hand unit (g, mg, mcg)")
	basic.Flags().String("volume", "1", "Volume the dose on hand comes in")
	basic.Flags().String("volume-unit", "mL", "Volume unit (L, mL)")

	weight := &cobra.Command{
		Use:   "weight",
		Short: "Weight based dose",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			q, err := quantityFlags(cmd, "weight", "dose-per-kg", "stock", "volume")
			if err != nil {
				return err
			}
			weightUnit, _ := f.GetString("weight-unit")
			stockUnit, _ := f.GetString("stock-unit")
			volumeUnit, _ := f.GetString("volume-unit")
			return printCalc(cmd)(dosecalc.WeightBasedDose(q[0], weightUnit, q[1], q[2], stockUnit, q[3], volumeUnit))
		},
	}
	weight.Flags().String("weight", "", "Patient weight")
	weight.Flags().String("weight-unit", "kg", "Weight unit (kg, lbs)")
	weight.Flags().String("dose-per-kg", "", "Ordered dose in mg per kg")
	weight.Flags().String("stock", "", "Dose on hand")
	weight.Flags().String("stock-unit", "mg", "Dose on hand unit (g, mg, mcg)")
	weight.Flags().String("volume", "1", "Volume the dose on hand comes in")
	weight.Flags().String("volume-unit", "mL", "Volume unit (L, mL)")

	iv := &cobra.Command{
		Use:   "iv",
		Short: "IV drip rate in mL/hr",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			q, err := quantityFlags(cmd, "volume", "time")
			if err != nil {
				return err
			}
			volumeUnit, _ := f.GetString("volume-unit")
			timeUnit, _ := f.GetString("time-unit")
			return printCalc(cmd)(dosecalc.IVDripRate(q[0], volumeUnit, q[1], timeUnit))
		},
	}
	iv.Flags().String("volume", "", "Volume to infuse")
	iv.Flags().String("volume-unit", "mL", "Volume unit (L, mL)")
	iv.Flags().String("time", "", "Infusion time")
	iv.Flags().String("time-unit", "hr", "Time unit (hr, min)")

	cmd.AddCommand(basic, weight, iv)
	return cmd
}

// quantityFlags parses numeric flags the way the calculator form does
func quantityFlags(cmd *cobra.Command, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		raw, _ := cmd.Flags().GetString(name)
		v, err := dosecalc.ParseQuantity(name, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func printCalc(cmd *cobra.Command) func(dosecalc.Result, error) error {
	return func(res dosecalc.Result, err error) error {
		if err != nil {
			return err
		}
		return printResult(cmd, res, func(w io.Writer) {
			for _, line := range res.Work {
				fmt.Fprintln(w, line)
			}
		})
	}
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage Redpanda topics",
	}
	cmd.PersistentFlags().StringSlice("brokers", nil, "Broker addresses (defaults to KAFKA_BROKERS)")
	cmd.PersistentFlags().Duration("timeout", 30*time.Second, "Admin request timeout")

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create the MedPyxis topics if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *redpanda.Admin) error {
				if err := admin.EnsureTopics(ctx); err != nil {
					return err
				}
				for _, tc := range redpanda.DefaultTopicConfigs() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (partitions=%d)\n", tc.Name, tc.Partitions)
				}
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *redpanda.Admin) error {
				names, err := admin.ListTopics(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}

	lag := &cobra.Command{
		Use:   "lag <group>",
		Short: "Show consumer group lag per partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *redpanda.Admin) error {
				lag, err := admin.ConsumerGroupLag(ctx, args[0])
				if err != nil {
					return err
				}
				return printResult(cmd, lag, func(w io.Writer) {
					for topic, parts := range lag {
						for p, n := range parts {
							fmt.Fprintf(w, "%s[%d] %d\n", topic, p, n)
						}
					}
				})
			})
		},
	}

	cmd.AddCommand(ensure, list, lag)
	return cmd
}

func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, admin *redpanda.Admin) error) error {
	brokers, _ := cmd.Flags().GetStringSlice("brokers")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if len(brokers) == 0 {
		cfg, err := config.Load("medpyxis-cli")
		if err != nil {
			return err
		}
		brokers = cfg.KafkaBrokers
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	admin, err := redpanda.NewAdmin(brokers, logger)
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, admin)
}
