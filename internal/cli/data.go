package cli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"options-analytics/internal/analytics"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/provider"
	"options-analytics/internal/store"
	"options-analytics/pkg/utils"
)

// addMarketDataCommands adds market data commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLastCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newFreshnessCmd(app))
}

// parsePeriod parses durations with day, week and year units ("30d",
// "2w", "1y") in addition to the time.ParseDuration forms.
func parsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"y": 365 * 24 * time.Hour,
	}
	if len(s) > 1 {
		if unit, ok := units[s[len(s)-1:]]; ok {
			n, err := strconv.ParseFloat(s[:len(s)-1], 64)
			if err == nil && n >= 0 {
				return time.Duration(n * float64(unit)), nil
			}
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "duration", s, "expected e.g. 15m, 1h, 1d, 2w or 1y")
	}
	return d, nil
}

func durationFlag(cmd *cobra.Command, name string) (time.Duration, error) {
	v, _ := cmd.Flags().GetString(name)
	d, err := parsePeriod(v)
	if err != nil {
		return 0, apperrors.Wrapf(err, "--%s", name)
	}
	return d, nil
}

func newLastCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "last <symbol>...",
		Short:       "Get the last traded price of one or more symbols",
		Annotations: dataCommand,
		Example: `  options-analytics last AAPL
  options-analytics last NSE:INFY NIFTY`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			type lastPrice struct {
				Symbol string  `json:"symbol"`
				Price  float64 `json:"price"`
			}
			var prices []lastPrice
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				price, err := app.Provider.FetchLastPrice(ctx, symbol)
				if err != nil {
					return apperrors.Wrapf(err, "last price of %s", symbol)
				}
				prices = append(prices, lastPrice{Symbol: symbol, Price: price})
			}

			if output.IsJSON() {
				return output.JSON(prices)
			}
			table := NewTable(output, "SYMBOL", "LAST").AlignRight(1)
			for _, p := range prices {
				table.AddRow(p.Symbol, num(p.Price, 2))
			}
			table.Render()
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "history <symbol>",
		Short:       "Get historical OHLCV data",
		Annotations: dataCommand,
		Long: `Fetch historical OHLCV (Open, High, Low, Close, Volume) data for a symbol.

Fetched data is written to the local store when caching is enabled.`,
		Example: `  options-analytics history AAPL
  options-analytics history INFY --interval 15m --period 5d
  options-analytics history MSFT --period 1y --csv > msft.csv`,
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
			limit, _ := cmd.Flags().GetInt("limit")
			asCSV, _ := cmd.Flags().GetBool("csv")

			history, err := app.Provider.FetchHistory(ctx, symbol, interval, period)
			if err != nil {
				return apperrors.Wrapf(err, "history of %s", symbol)
			}
			if limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}

			switch {
			case asCSV:
				return gocsv.Marshal(&history, output.Writer())
			case output.IsJSON():
				return output.JSON(history)
			}

			displayHistory(output, symbol, history, app.Config.UI.DateFormat, interval)
			return nil
		},
	}

	cmd.Flags().String("interval", "1d", "Sampling interval (e.g. 5m, 1h, 1d, 1w)")
	cmd.Flags().String("period", "30d", "How far back to fetch (e.g. 5d, 6w, 1y)")
	cmd.Flags().IntP("limit", "n", 0, "Show only the most recent N rows")
	cmd.Flags().Bool("csv", false, "Write CSV instead of a table")

	return cmd
}

func displayHistory(output *Output, symbol string, history models.StockHistory, dateFormat string, interval time.Duration) {
	if len(history) == 0 {
		output.Warning("No data for %s", symbol)
		return
	}
	layout := dateFormat
	if interval > 0 && interval < 24*time.Hour {
		layout = dateFormat + " 15:04"
	}

	currency := history[0].Currency
	output.Bold("%s (%s)", symbol, strings.TrimSpace(utils.CurrencySymbol(currency)+" "+currency))
	table := NewTable(output, "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME").AlignRight(1, 2, 3, 4, 5)
	for _, d := range history {
		table.AddRow(
			d.Time.Format(layout),
			num(d.Open, 2),
			num(d.High, 2),
			num(d.Low, 2),
			num(d.Close, 2),
			utils.FormatVolume(d.Volume),
		)
	}
	table.Render()
	output.Dim("%d rows", len(history))
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "chain <symbol>",
		Short:       "Show the option chain of an underlying",
		Annotations: dataCommand,
		Long: `Fetch the option chain of an underlying for one expiry.

The expiry is "next" (the nearest listed expiry), "friday" (the Friday on or
after today) or a date in YYYY-MM-DD form. With --greeks the model price and
Greeks of every contract are computed in parallel.`,
		Example: `  options-analytics chain AAPL
  options-analytics chain AAPL --expiry friday --greeks
  options-analytics chain NIFTY --expiry 2024-03-28 --strikes 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			expiryFlag, _ := cmd.Flags().GetString("expiry")
			withGreeks, _ := cmd.Flags().GetBool("greeks")
			strikes, _ := cmd.Flags().GetInt("strikes")

			selector, err := provider.ParseExpirySelector(expiryFlag)
			if err != nil {
				return err
			}

			chain, err := app.Provider.FetchOptionChain(ctx, symbol, selector)
			if err != nil {
				return apperrors.Wrapf(err, "option chain of %s", symbol)
			}
			if strikes > 0 {
				chain = aroundMoney(chain, strikes)
			}

			var cg *analytics.ChainGreeks
			if withGreeks {
				rate := rateFlag(cmd)
				res, err := app.analyticsEngine(rate).ChainGreeks(ctx, chain)
				if err != nil {
					return err
				}
				cg = &res
			}

			if output.IsJSON() {
				return output.JSON(chainJSON(chain, cg))
			}
			displayChain(output, chain, cg, app.Config.UI.DateFormat)
			return nil
		},
	}

	cmd.Flags().String("expiry", "next", "Expiry: next, friday or YYYY-MM-DD")
	cmd.Flags().Bool("greeks", false, "Compute model price and Greeks for each contract")
	cmd.Flags().Int("strikes", 0, "Show only N strikes on each side of the money")
	cmd.Flags().Float64("rate", 0, "Risk-free rate override (decimal, e.g. 0.05)")

	return cmd
}

// rateFlag returns the --rate value when the flag was given.
func rateFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("rate") {
		return nil
	}
	r, _ := cmd.Flags().GetFloat64("rate")
	return &r
}

// aroundMoney keeps n strikes below and n at or above the underlying price.
func aroundMoney(chain models.OptionChain, n int) models.OptionChain {
	spot := underlyingPrice(chain)
	trim := func(side []models.MarketSnapshot) []models.MarketSnapshot {
		first := 0
		for first < len(side) && side[first].Strike() < spot {
			first++
		}
		lo, hi := first-n, first+n
		if lo < 0 {
			lo = 0
		}
		if hi > len(side) {
			hi = len(side)
		}
		return side[lo:hi]
	}
	return models.NewOptionChain(chain.Symbol, chain.Expiry, trim(chain.Calls), trim(chain.Puts))
}

// underlyingPrice returns the stock price the chain was quoted against.
func underlyingPrice(chain models.OptionChain) float64 {
	if len(chain.Calls) > 0 {
		return chain.Calls[0].CurrentStockPrice()
	}
	if len(chain.Puts) > 0 {
		return chain.Puts[0].CurrentStockPrice()
	}
	return 0
}

type contractRow struct {
	Contract models.MarketSnapshot  `json:"contract"`
	Price    interface{}            `json:"model_price,omitempty"`
	Greeks   map[string]interface{} `json:"greeks,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func greeksJSON(g models.OptionGreeks) map[string]interface{} {
	return map[string]interface{}{
		"delta": finite(g.Delta),
		"gamma": finite(g.Gamma),
		"theta": finite(g.Theta),
		"vega":  finite(g.Vega),
		"rho":   finite(g.Rho),
	}
}

func chainJSON(chain models.OptionChain, cg *analytics.ChainGreeks) map[string]interface{} {
	rows := func(side []models.MarketSnapshot, computed []analytics.ContractGreeks) []contractRow {
		out := make([]contractRow, len(side))
		for i, s := range side {
			out[i].Contract = s
			if computed == nil {
				continue
			}
			if err := computed[i].Err; err != nil {
				out[i].Error = err.Error()
				continue
			}
			out[i].Price = finite(computed[i].Price)
			out[i].Greeks = greeksJSON(computed[i].Greeks)
		}
		return out
	}

	var calls, puts []analytics.ContractGreeks
	if cg != nil {
		calls, puts = cg.Calls, cg.Puts
	}
	return map[string]interface{}{
		"symbol": chain.Symbol,
		"expiry": chain.Expiry,
		"calls":  rows(chain.Calls, calls),
		"puts":   rows(chain.Puts, puts),
	}
}

func displayChain(output *Output, chain models.OptionChain, cg *analytics.ChainGreeks, dateFormat string) {
	output.Bold("%s option chain, expiry %s", chain.Symbol, chain.Expiry.Format(dateFormat))
	if chain.IsEmpty() {
		output.Warning("No contracts listed")
		return
	}
	output.Dim("Underlying: %s", num(underlyingPrice(chain), 2))

	side := func(title string, contracts []models.MarketSnapshot, computed []analytics.ContractGreeks) {
		if len(contracts) == 0 {
			return
		}
		output.Println()
		output.Bold("%s", title)
		headers := []string{"STRIKE", "LAST", "BID", "IV", "OI", "VOLUME"}
		if computed != nil {
			headers = append(headers, "MODEL", "DELTA", "GAMMA", "THETA", "VEGA")
		}
		table := NewTable(output, headers...)
		for c := range headers {
			table.AlignRight(c)
		}
		for i, s := range contracts {
			row := []string{
				num(s.Strike(), 2),
				num(s.LastPrice(), 2),
				num(s.Bid(), 2),
				num(s.ImpliedVolatility()*100, 1) + "%",
				utils.FormatVolume(s.OpenInterest()),
				utils.FormatVolume(s.Volume()),
			}
			if computed != nil {
				c := computed[i]
				if c.Err != nil {
					row = append(row, "-", "-", "-", "-", "-")
				} else {
					row = append(row,
						num(c.Price, 2),
						num(c.Greeks.Delta, 3),
						num(c.Greeks.Gamma, 4),
						num(c.Greeks.Theta, 3),
						num(c.Greeks.Vega, 3),
					)
				}
			}
			table.AddRow(row...)
		}
		table.Render()
	}

	var calls, puts []analytics.ContractGreeks
	if cg != nil {
		calls, puts = cg.Calls, cg.Puts
	}
	side("CALLS", chain.Calls, calls)
	side("PUTS", chain.Puts, puts)
}

func newFreshnessCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "freshness <symbol>",
		Short:       "Show how old the locally stored data of a symbol is",
		Annotations: dataCommand,
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return apperrors.Wrap(apperrors.ErrDataNotFound, "local store is not available")
			}

			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			var all []*store.DataFreshness
			for _, dt := range []store.DataType{store.DataTypeLastPrice, store.DataTypeHistory, store.DataTypeOptionChain} {
				f, err := app.Store.Freshness(cmd.Context(), dt, symbol)
				if err != nil {
					return err
				}
				all = append(all, f)
			}

			if output.IsJSON() {
				return output.JSON(all)
			}
			table := NewTable(output, "DATA", "STATUS")
			for _, f := range all {
				table.AddRow(string(f.DataType), store.FormatFreshness(f))
			}
			table.Render()
			return nil
		},
	}
}
