package cli

import (
	"context"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"options-analytics/internal/analytics"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/greeks"
	"options-analytics/internal/models"
	"options-analytics/internal/payoff"
	"options-analytics/internal/provider"
	"options-analytics/pkg/utils"
)

// addAnalyticsCommands adds pricing and statistics commands.
func addAnalyticsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newGreeksCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newPayoffCmd(app))
	rootCmd.AddCommand(newVolatilityCmd(app))
	rootCmd.AddCommand(newCorrelateCmd(app))
}

const contractHelp = `The contract is either looked up in the option chain of <symbol> by
--type and --strike (and --expiry), or described entirely by flags:
--type, --strike, --spot, --iv and --expiry. Flags given alongside a
symbol override the quoted values.`

// addContractFlags registers the flags that describe one contract.
func addContractFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "Option type: call or put")
	cmd.Flags().Float64("strike", 0, "Strike price")
	cmd.Flags().Float64("spot", 0, "Underlying price")
	cmd.Flags().Float64("iv", 0, "Implied volatility (decimal, e.g. 0.25)")
	cmd.Flags().Float64("last", 0, "Option premium")
	cmd.Flags().String("expiry", "next", "Expiry: next, friday, YYYY-MM-DD or an RFC 3339 instant")
	cmd.Flags().String("market", "us", "Session for date-only expiries: us or nse")
	cmd.Flags().String("currency", "", "Currency of the contract")
	cmd.Flags().Float64("rate", 0, "Risk-free rate override (decimal, e.g. 0.05)")
}

// parseExpiryInstant parses an RFC 3339 instant or a date, which expires
// at the close of the market's session on that date.
func parseExpiryInstant(s string, m utils.Market) (time.Time, error) {
	if t, err := models.ParseInstant(s); err == nil {
		return t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "expiry", s, "expected YYYY-MM-DD or an RFC 3339 instant")
	}
	return m.SessionClose(d), nil
}

// resolveContract builds the snapshot a pricing command works on.
func resolveContract(ctx context.Context, cmd *cobra.Command, app *App, args []string) (models.MarketSnapshot, error) {
	flags := cmd.Flags()
	typeFlag, _ := flags.GetString("type")
	optionType, err := models.ParseOptionType(typeFlag)
	if err != nil {
		return models.MarketSnapshot{}, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "type", typeFlag, "must be call or put")
	}
	strike, _ := flags.GetFloat64("strike")
	expiryFlag, _ := flags.GetString("expiry")

	var params models.SnapshotParams
	if len(args) == 1 {
		if optionType == models.OptionTypeUndefined || strike <= 0 {
			return models.MarketSnapshot{}, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "type/strike", typeFlag, "--type and --strike select the contract in the chain")
		}
		selector, err := provider.ParseExpirySelector(expiryFlag)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		chain, err := app.Provider.FetchOptionChain(ctx, strings.ToUpper(args[0]), selector)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		snap, ok := chain.AtStrike(optionType, strike)
		if !ok {
			return models.MarketSnapshot{}, apperrors.Wrapf(apperrors.ErrDataNotFound, "no %s at strike %g in the %s chain", optionType, strike, chain.Symbol)
		}
		params = snap.Params()
	} else {
		m, err := market(mustString(cmd, "market"))
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		expiry, err := parseExpiryInstant(expiryFlag, m)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		params = models.SnapshotParams{
			OptionType:   optionType,
			Strike:       strike,
			OptionExpiry: expiry,
		}
	}

	if flags.Changed("spot") || len(args) == 0 {
		params.CurrentStockPrice, _ = flags.GetFloat64("spot")
	}
	if flags.Changed("iv") || len(args) == 0 {
		params.ImpliedVolatility, _ = flags.GetFloat64("iv")
	}
	if flags.Changed("last") || len(args) == 0 {
		params.LastPrice, _ = flags.GetFloat64("last")
	}
	if flags.Changed("currency") || len(args) == 0 {
		params.Currency = mustString(cmd, "currency")
	}
	return models.NewMarketSnapshot(params)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func newGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "greeks [symbol]",
		Short:       "Compute Black-Scholes-Merton Greeks of a contract",
		Annotations: dataCommand,
		Long:        "Compute delta, gamma, theta, vega and rho of one option contract.\n\n" + contractHelp,
		Example: `  options-analytics greeks --type call --strike 100 --spot 100 --iv 0.2 --expiry 2024-07-19
  options-analytics greeks AAPL --type put --strike 170 --expiry friday`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			snap, err := resolveContract(ctx, cmd, app, args)
			if err != nil {
				return err
			}
			engine := app.greeksEngine(rateFlag(cmd))
			now := engine.Now()

			g, err := engine.Compute(snap)
			if err != nil {
				return err
			}
			price, err := engine.Price(snap)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"contract":        snap,
					"now":             now,
					"rate":            engine.Rate,
					"years_to_expiry": greeks.YearsToExpiry(snap.OptionExpiry(), now),
					"model_price":     finite(price),
					"greeks":          greeksJSON(g),
				})
			}

			displayContract(output, snap, now, engine.Rate)
			table := NewTable(output, "GREEK", "VALUE").AlignRight(1)
			table.AddRow("Delta", num(g.Delta, 4))
			table.AddRow("Gamma", num(g.Gamma, 6))
			table.AddRow("Theta", num(g.Theta, 4))
			table.AddRow("Vega", num(g.Vega, 4))
			table.AddRow("Rho", num(g.Rho, 4))
			table.AddRow("Model price", num(price, 4))
			table.Render()
			return nil
		},
	}
	addContractFlags(cmd)
	return cmd
}

func displayContract(output *Output, s models.MarketSnapshot, now time.Time, rate float64) {
	title := s.OptionType().String()
	if s.Symbol() != "" {
		title = s.Symbol() + " " + title
	}
	output.Bold("%s %s, expiry %s", title, num(s.Strike(), 2), s.OptionExpiry().Format(time.RFC3339))
	days := greeks.YearsToExpiry(s.OptionExpiry(), now) * greeks.DaysPerYear
	output.Dim("Spot %s  IV %s%%  rate %s%%  %s days to expiry",
		num(s.CurrentStockPrice(), 2), num(s.ImpliedVolatility()*100, 2), num(rate*100, 2), num(days, 1))
	output.Println()
}

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "price [symbol]",
		Short:       "Compute the model premium and implied volatility of a contract",
		Annotations: dataCommand,
		Long: "Compute the Black-Scholes-Merton premium of one option contract and, when a\n" +
			"premium is known (--last or a quoted contract), the volatility it implies.\n\n" + contractHelp,
		Example: `  options-analytics price --type call --strike 100 --spot 102 --iv 0.3 --expiry 2024-07-19
  options-analytics price --type put --strike 100 --spot 98 --last 4.1 --expiry 2024-07-19`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			snap, err := resolveContract(ctx, cmd, app, args)
			if err != nil {
				return err
			}
			engine := app.greeksEngine(rateFlag(cmd))
			now := engine.Now()

			price, err := engine.Price(snap)
			if err != nil {
				return err
			}
			intrinsic, err := payoff.Intrinsic(snap)
			if err != nil {
				return err
			}

			var implied interface{}
			var ivErr error
			if snap.LastPrice() > 0 {
				iv, err := greeks.ImpliedVolatility(snap, now, engine.Rate)
				if err != nil {
					ivErr = err
				} else {
					implied = iv
				}
			}

			if output.IsJSON() {
				out := map[string]interface{}{
					"contract":           snap,
					"model_price":        finite(price),
					"intrinsic":          intrinsic,
					"time_value":         finite(price - intrinsic),
					"implied_volatility": implied,
				}
				if ivErr != nil {
					out["implied_volatility_error"] = ivErr.Error()
				}
				return output.JSON(out)
			}

			currency := snap.Currency()
			displayContract(output, snap, now, engine.Rate)
			output.Printf("  Model price:  %s\n", utils.FormatMoney(price, currency))
			output.Printf("  Intrinsic:    %s\n", utils.FormatMoney(intrinsic, currency))
			output.Printf("  Time value:   %s\n", utils.FormatMoney(price-intrinsic, currency))
			if snap.LastPrice() > 0 {
				output.Printf("  Last price:   %s\n", utils.FormatMoney(snap.LastPrice(), currency))
				if ivErr != nil {
					output.Warning("  Implied vol:  unavailable (%v)", ivErr)
				} else {
					output.Printf("  Implied vol:  %s%%\n", num(implied.(float64)*100, 2))
				}
			}
			return nil
		},
	}
	addContractFlags(cmd)
	return cmd
}

func newPayoffCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "payoff [symbol]",
		Short:       "Compute the cash payoff of an option position",
		Annotations: dataCommand,
		Long: "Compute the cash P&L of holding --position contracts (negative for short)\n" +
			"if exercised at the current underlying price, net of the premium paid.\n\n" + contractHelp,
		Example: `  options-analytics payoff --type call --strike 100 --spot 110 --last 4 --expiry 2024-07-19 --position 2
  options-analytics payoff --type put --strike 100 --spot 95 --last 3 --expiry 2024-07-19 --position -1 --at 90,95,100,105`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			snap, err := resolveContract(ctx, cmd, app, args)
			if err != nil {
				return err
			}
			position, _ := cmd.Flags().GetInt("position")
			size, _ := cmd.Flags().GetInt("contract-size")
			if !cmd.Flags().Changed("contract-size") {
				size = app.Config.Analytics.ContractSize
			}
			spots, _ := cmd.Flags().GetFloat64Slice("at")

			calc := payoff.NewCalculator(size)
			cash, err := calc.Payoff(snap, position)
			if err != nil {
				return err
			}
			intrinsic, err := payoff.Intrinsic(snap)
			if err != nil {
				return err
			}
			breakeven, err := payoff.Breakeven(snap)
			if err != nil {
				return err
			}

			type point struct {
				Spot   float64 `json:"spot"`
				Payoff float64 `json:"payoff"`
			}
			var ladder []point
			for _, spot := range spots {
				at, err := snap.WithCurrentStockPrice(spot)
				if err != nil {
					return err
				}
				v, err := calc.Payoff(at, position)
				if err != nil {
					return err
				}
				ladder = append(ladder, point{Spot: spot, Payoff: v})
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"contract":      snap,
					"position":      position,
					"contract_size": calc.ContractSize,
					"intrinsic":     intrinsic,
					"payoff":        cash,
					"breakeven":     breakeven,
					"at":            ladder,
				})
			}

			currency := snap.Currency()
			side := "long"
			if position < 0 {
				side = "short"
			}
			output.Bold("%s %d × %s %s (%d per contract)", side, abs(position), snap.OptionType(), num(snap.Strike(), 2), calc.ContractSize)
			output.Printf("  Spot:       %s\n", utils.FormatMoney(snap.CurrentStockPrice(), currency))
			output.Printf("  Premium:    %s\n", utils.FormatMoney(snap.LastPrice(), currency))
			output.Printf("  Intrinsic:  %s\n", utils.FormatMoney(intrinsic, currency))
			output.Printf("  Breakeven:  %s\n", utils.FormatMoney(breakeven, currency))
			output.Printf("  Payoff:     %s\n", output.PnL(cash, currency))

			if len(ladder) > 0 {
				output.Println()
				table := NewTable(output, "SPOT", "PAYOFF").AlignRight(0, 1)
				for _, p := range ladder {
					table.AddRow(utils.FormatMoney(p.Spot, currency), output.PnL(p.Payoff, currency))
				}
				table.Render()
			}
			return nil
		},
	}
	addContractFlags(cmd)
	cmd.Flags().Int("position", 1, "Number of contracts, negative for a short position")
	cmd.Flags().Int("contract-size", payoff.DefaultContractSize, "Shares per contract (default from config)")
	cmd.Flags().Float64Slice("at", nil, "Also evaluate the payoff at these underlying prices")
	return cmd
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func newVolatilityCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "volatility <symbol>",
		Short:       "Compute annualised historical volatility",
		Annotations: dataCommand,
		Long: `Compute the annualised standard deviation of log returns over a price history.

Returns are annualised with 252 trading days per year, and 6.5 trading hours
per day for intraday intervals.`,
		Example: `  options-analytics volatility AAPL --period 1y
  options-analytics volatility INFY --interval 1h --period 30d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			interval, err := durationFlag(cmd, "interval")
			if err != nil {
				return err
			}
			period, err := durationFlag(cmd, "period")
			if err != nil {
				return err
			}

			history, err := app.Provider.FetchHistory(ctx, symbol, interval, period)
			if err != nil {
				return apperrors.Wrapf(err, "history of %s", symbol)
			}
			hv, err := analytics.HistoricalVolatility(history, analytics.PeriodsPerYear(interval))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":     symbol,
					"interval":   interval.String(),
					"samples":    len(history),
					"from":       history[0].Time,
					"to":         history[len(history)-1].Time,
					"volatility": hv,
				})
			}
			output.Bold("%s historical volatility", symbol)
			output.Printf("  Annualised:  %s%%\n", num(hv*100, 2))
			output.Dim("  %d samples from %s to %s", len(history),
				history[0].Time.Format(app.Config.UI.DateFormat), history[len(history)-1].Time.Format(app.Config.UI.DateFormat))
			return nil
		},
	}
	cmd.Flags().String("interval", "1d", "Sampling interval (e.g. 1h, 1d, 1w)")
	cmd.Flags().String("period", "1y", "How far back to fetch (e.g. 90d, 1y)")
	return cmd
}

func newCorrelateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "correlate <symbol> <symbol>",
		Short:       "Compute the rolling correlation of two symbols",
		Annotations: dataCommand,
		Long: `Compute the correlation of log returns of two symbols, overall and over a
rolling window. Samples are matched by timestamp.`,
		Example: `  options-analytics correlate AAPL MSFT --window 20
  options-analytics correlate SPY QQQ --period 2y --csv > corr.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			a, b := strings.ToUpper(args[0]), strings.ToUpper(args[1])
			interval, err := durationFlag(cmd, "interval")
			if err != nil {
				return err
			}
			period, err := durationFlag(cmd, "period")
			if err != nil {
				return err
			}
			window, _ := cmd.Flags().GetInt("window")
			limit, _ := cmd.Flags().GetInt("limit")
			asCSV, _ := cmd.Flags().GetBool("csv")

			ha, err := app.Provider.FetchHistory(ctx, a, interval, period)
			if err != nil {
				return err
			}
			hb, err := app.Provider.FetchHistory(ctx, b, interval, period)
			if err != nil {
				return err
			}

			overall, err := analytics.Correlation(ha, hb)
			if err != nil {
				return err
			}
			rolling, err := analytics.RollingCorrelation(ha, hb, window)
			if err != nil {
				return err
			}

			if asCSV {
				return gocsv.Marshal(&rolling, output.Writer())
			}
			if output.IsJSON() {
				series := make([]map[string]interface{}, len(rolling))
				for i, p := range rolling {
					series[i] = map[string]interface{}{"time": p.Time, "value": finite(p.Value)}
				}
				return output.JSON(map[string]interface{}{
					"symbols": []string{a, b},
					"window":  window,
					"overall": finite(overall),
					"rolling": series,
				})
			}

			output.Bold("%s / %s correlation of returns", a, b)
			output.Printf("  Overall:  %s\n", num(overall, 4))
			shown := rolling
			if limit > 0 && len(shown) > limit {
				shown = shown[len(shown)-limit:]
			}
			output.Println()
			table := NewTable(output, "TIME", "ROLLING").AlignRight(1)
			for _, p := range shown {
				table.AddRow(p.Time.Format(app.Config.UI.DateFormat), num(p.Value, 4))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("interval", "1d", "Sampling interval (e.g. 1h, 1d)")
	cmd.Flags().String("period", "1y", "How far back to fetch (e.g. 90d, 1y)")
	cmd.Flags().Int("window", 20, "Rolling window in returns")
	cmd.Flags().IntP("limit", "n", 10, "Show only the most recent N rolling values")
	cmd.Flags().Bool("csv", false, "Write the rolling series as CSV")
	return cmd
}
