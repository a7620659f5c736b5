package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "casebank/internal/cli"
	"casebank/internal/config"
	"casebank/internal/economy"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func main() {
	cfg := config.LoadCLIFromEnv()

	root := &cobra.Command{
		Use:          "cbk",
		Short:        "Casebank admin console",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(cfg.APIBaseURL),
		newLogoutCmd(),
		newWithdrawalsCmd(),
		newPromosCmd(),
		newSettingsCmd(),
		newStocksCmd(),
		newCasesCmd(),
		newCreditCmd(),
		newAccrueCmd(),
		newStatsCmd(),
		newLeaderboardCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withClient loads the saved session and runs fn with a bounded context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *cl.Client) error) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return fn(ctx, cl.NewClient(sess.BaseURL, sess.Token, sess.AdminID))
}

func newLoginCmd(defaultBase string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save API credentials for an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := promptDefault("API base URL", defaultBase)
			if err != nil {
				return err
			}
			token, err := promptRequired("API token")
			if err != nil {
				return err
			}
			adminID, err := promptInt64("Admin user id", 1)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			client := cl.NewClient(base, token, adminID)
			if _, err := client.Stats(ctx); err != nil {
				return fmt.Errorf("verify credentials: %w", err)
			}
			if err := cl.SaveSession(cl.Session{BaseURL: client.BaseURL, Token: token, AdminID: adminID}); err != nil {
				return err
			}
			printSuccess("Login successful. Session saved.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear saved credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newWithdrawalsCmd() *cobra.Command {
	wd := &cobra.Command{
		Use:     "withdrawals",
		Short:   "Review item withdrawal requests",
		Aliases: []string{"wd"},
	}
	wd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.PendingWithdrawals(ctx)
				if err != nil {
					return err
				}
				renderWithdrawals(rows)
				return nil
			})
		},
	})
	wd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show one request in any state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.Withdrawal(ctx, args[0])
				if err != nil {
					return err
				}
				renderWithdrawal(out)
				return nil
			})
		},
	})
	wd.AddCommand(newResolveCmd("approve", economy.WithdrawalApproved))
	wd.AddCommand(newResolveCmd("reject", economy.WithdrawalRejected))
	return wd
}

func newResolveCmd(use string, status economy.WithdrawalStatus) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.ResolveWithdrawal(ctx, args[0], status, notes)
				if err != nil {
					return err
				}
				renderWithdrawal(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "note shown to the user")
	return cmd
}

func newPromosCmd() *cobra.Command {
	promos := &cobra.Command{
		Use:     "promos",
		Short:   "Manage promo codes",
		Aliases: []string{"promo"},
	}

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List promo codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.Promos(ctx, activeOnly)
				if err != nil {
					return err
				}
				renderPromos(rows)
				return nil
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active codes")

	var amount string
	var maxUses int64
	create := &cobra.Command{
		Use:   "create [CODE]",
		Short: "Create a promo code; a random code is generated when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := economy.ParseAmount(amount)
			if err != nil {
				return err
			}
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.CreatePromo(ctx, code, value, maxUses)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Promo %s created: %s atm, %d uses.", out.Code, formatAmount(out.Amount), out.MaxUses))
				return nil
			})
		},
	}
	create.Flags().StringVar(&amount, "amount", "", "amount credited per redemption")
	create.Flags().Int64Var(&maxUses, "max-uses", 1, "maximum redemptions")
	_ = create.MarkFlagRequired("amount")

	deactivate := &cobra.Command{
		Use:   "deactivate CODE",
		Short: "Stop a code from being redeemed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.DeactivatePromo(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Promo %s deactivated.", out.Code))
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete CODE",
		Short: "Delete a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				if err := c.DeletePromo(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Promo %s deleted.", strings.ToUpper(args[0])))
				return nil
			})
		},
	}

	promos.AddCommand(list, create, deactivate, del)
	return promos
}

func newSettingsCmd() *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Deposit settings",
	}
	settings.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.Settings(ctx)
				if err != nil {
					return err
				}
				renderSettings(out)
				return nil
			})
		},
	})

	var percent, minAmount string
	var enabled bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch economy.SettingsPatch
			if cmd.Flags().Changed("percent") {
				v, err := decimal.NewFromString(strings.TrimSpace(percent))
				if err != nil {
					return fmt.Errorf("invalid percent: %w", err)
				}
				patch.DepositPercent = &v
			}
			if cmd.Flags().Changed("min") {
				v, err := economy.ParseAmount(minAmount)
				if err != nil {
					return err
				}
				patch.MinDepositAmount = &v
			}
			if cmd.Flags().Changed("enabled") {
				patch.DepositEnabled = &enabled
			}
			if patch == (economy.SettingsPatch{}) {
				return fmt.Errorf("nothing to change; pass --percent, --min or --enabled")
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.UpdateSettings(ctx, patch)
				if err != nil {
					return err
				}
				renderSettings(out)
				return nil
			})
		},
	}
	set.Flags().StringVar(&percent, "percent", "", "monthly deposit percent")
	set.Flags().StringVar(&minAmount, "min", "", "minimum deposit amount")
	set.Flags().BoolVar(&enabled, "enabled", true, "accept new deposits")
	settings.AddCommand(set)
	return settings
}

func newStocksCmd() *cobra.Command {
	stocks := &cobra.Command{
		Use:     "stocks",
		Short:   "Stock market administration",
		Aliases: []string{"stock"},
	}
	stocks.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.Stocks(ctx)
				if err != nil {
					return err
				}
				renderStocks(rows)
				return nil
			})
		},
	})

	var in economy.Stock
	var price string
	create := &cobra.Command{
		Use:   "create SYMBOL",
		Short: "List a new stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := economy.ParseAmount(price)
			if err != nil {
				return err
			}
			in.Symbol = strings.ToUpper(args[0])
			in.Price = p
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.CreateStock(ctx, in)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("%s listed at %s atm with %s shares.", out.Symbol, formatAmount(out.Price), comma(out.SharesAvailable)))
				return nil
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "company name")
	create.Flags().StringVar(&price, "price", "", "initial price")
	create.Flags().Int64Var(&in.SharesAvailable, "shares", 0, "shares available (default 10000)")
	create.Flags().StringVar(&in.Sector, "sector", "", "sector label")
	create.Flags().Float64Var(&in.Volatility, "volatility", 0, "percent band per tick (random when 0)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("price")

	stocks.AddCommand(create)
	stocks.AddCommand(&cobra.Command{
		Use:   "price SYMBOL PRICE",
		Short: "Set a stock price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := economy.ParseAmount(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.SetStockPrice(ctx, args[0], p)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("%s now %s atm (%s).", out.Symbol, formatAmount(out.Price), colorizePercent(out.LastChangePercent)))
				return nil
			})
		},
	})
	stocks.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run one price update now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.UpdatePrices(ctx)
				if err != nil {
					return err
				}
				renderStocks(rows)
				return nil
			})
		},
	})
	return stocks
}

func newCasesCmd() *cobra.Command {
	cases := &cobra.Command{
		Use:     "cases",
		Short:   "Case catalog administration",
		Aliases: []string{"case"},
	}
	cases.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.Cases(ctx)
				if err != nil {
					return err
				}
				renderCases(rows)
				return nil
			})
		},
	})
	cases.AddCommand(&cobra.Command{
		Use:   "restock ID OPENS",
		Short: "Add opens to a limited case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opens, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid opens: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.RestockCase(ctx, args[0], opens)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("%s restocked: %d/%d opens left.", out.ID, out.OpensLeft, out.MaxOpens))
				return nil
			})
		},
	})
	cases.AddCommand(&cobra.Command{
		Use:   "upsert FILE",
		Short: "Create or replace a case from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var in economy.Case
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.UpsertCase(ctx, in)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Case %s saved with %d rewards.", out.ID, len(out.Rewards)))
				return nil
			})
		},
	})
	return cases
}

func newCreditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credit USER_ID AMOUNT",
		Short: "Add currency to a player's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			amount, err := economy.ParseAmount(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.Credit(ctx, userID, amount)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("User %d balance: %s atm.", out.ID, formatAmount(out.Balance)))
				return nil
			})
		},
	}
}

func newAccrueCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "accrue",
		Short: "Credit monthly deposit interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.RunAccrual(ctx, period)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Period %s: %d accounts credited, %d skipped, %s atm total.",
					out.Period, out.Accounts, out.Skipped, formatAmount(out.TotalProfit)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period to accrue as YYYY-MM (default current month)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Economy statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				out, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				renderStats(out)
				pending, err := c.PendingNotifications(ctx)
				if err != nil {
					return err
				}
				if pending > 0 {
					printWarn(fmt.Sprintf("%d notifications waiting for delivery.", pending))
				}
				return nil
			})
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Top players by capital",
		Aliases: []string{"top"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *cl.Client) error {
				rows, err := c.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				renderLeaderboard(rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show")
	return cmd
}
