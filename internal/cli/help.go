package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd(app))
	rootCmd.AddCommand(newExamplesCmd(app))
}

type helpEntry struct {
	cmd  string
	desc string
}

type helpCategory struct {
	name    string
	entries []helpEntry
}

var commandCategories = []helpCategory{
	{
		name: "Market Data",
		entries: []helpEntry{
			{"last <symbols...>", "Last traded price"},
			{"history <symbol>", "Historical OHLCV data (--csv to export)"},
			{"chain <symbol>", "Option chain, optionally with Greeks"},
			{"freshness", "Age of the local data cache"},
		},
	},
	{
		name: "Analytics",
		entries: []helpEntry{
			{"greeks [symbol]", "Delta, gamma, theta, vega and rho"},
			{"price [symbol]", "Model premium and implied volatility"},
			{"payoff [symbol]", "Cash payoff of a position"},
			{"volatility <symbol>", "Annualised historical volatility"},
			{"correlate <a> <b>", "Rolling correlation of returns"},
		},
	},
	{
		name: "Utilities",
		entries: []helpEntry{
			{"config show/path/validate", "Configuration"},
			{"commands", "List all commands"},
			{"examples", "Common workflows"},
			{"version", "Version information"},
		},
	},
}

func newCommandsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		Long:  "Display all available commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if output.IsJSON() {
				out := make(map[string][]string, len(commandCategories))
				for _, cat := range commandCategories {
					for _, e := range cat.entries {
						out[cat.name] = append(out[cat.name], e.cmd)
					}
				}
				return output.JSON(out)
			}

			output.Bold("Options Analytics Commands")
			output.Println()
			for _, cat := range commandCategories {
				output.Bold(cat.name)
				for _, e := range cat.entries {
					output.Printf("  %-28s %s\n", output.Cyan(e.cmd), e.desc)
				}
				output.Println()
			}
			output.Dim("Use 'options-analytics help <command>' for detailed help on any command")
			return nil
		},
	}
}

func newExamplesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Price a contract by hand",
					commands: []string{
						"options-analytics greeks --type call --strike 100 --spot 100 --iv 0.2 --expiry 2024-07-19",
						"options-analytics price --type put --strike 100 --spot 98 --last 4.1 --expiry 2024-07-19",
					},
				},
				{
					title: "Work from a live chain",
					commands: []string{
						"options-analytics chain NIFTY --greeks --strikes 5",
						"options-analytics greeks AAPL --type call --strike 190 --expiry friday",
						"options-analytics payoff AAPL --type call --strike 190 --position -2 --at 180,190,200",
					},
				},
				{
					title: "Statistics over history",
					commands: []string{
						"options-analytics volatility AAPL --period 1y",
						"options-analytics correlate SPY QQQ --window 20",
						"options-analytics history INFY --period 90d --csv > infy.csv",
					},
				},
			}

			output.Bold("Common Workflow Examples")
			output.Println()
			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					output.Printf("  %s\n", output.Cyan(c))
				}
				output.Println()
			}
			return nil
		},
	}
}
