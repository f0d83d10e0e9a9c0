package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/scanner"
	solclient "github.com/solanare/reclaimer/service/solana"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a wallet for closeable accounts",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(rpcFlags(),
			&cli.BoolFlag{
				Name:  "include-warned",
				Usage: "Count accounts whose remaining balance would be burned as closeable",
			},
			&cli.Uint64Flag{
				Name:    "min-viable",
				Usage:   "Minimum net lamports per account worth closing",
				EnvVars: []string{"MIN_VIABLE_RECLAIM_LAMPORTS"},
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter expression the report must satisfy (can be specified multiple times, all must match)",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			wallet, err := solana.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid wallet address %q: %w", c.Args().Get(0), err)
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			logger := cliLogger()
			cl, cleanup, err := newSolanaClient(c, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			probe := scanner.NewLiquidityProbe(cl, logger)
			classifier := scanner.NewClassifier(probe, fees.TierStandard, c.Uint64("min-viable"), logger)
			scan := scanner.NewScanner(cl, classifier, nil, logger)

			result, err := scan.Scan(context.Background(), wallet)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			report := buildScanReport(wallet, result)

			if len(filters) > 0 {
				ok, err := matchesJQFilters(report, filters)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("scan report did not match jq filters")
				}
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal report: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printScanReport(report)
			return nil
		},
	}
}

// scanReport is the CLI-facing shape of a scan result.
type scanReport struct {
	Wallet            string              `json:"wallet"`
	TotalAccounts     int                 `json:"total_accounts"`
	CloseableCount    int                 `json:"closeable_count"`
	PotentialLamports uint64              `json:"potential_reclaim_lamports"`
	PotentialSOL      float64             `json:"potential_reclaim_sol"`
	RiskLevel         string              `json:"risk_level"`
	Warnings          []string            `json:"warnings,omitempty"`
	Accounts          []scanReportAccount `json:"accounts"`
}

type scanReportAccount struct {
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	Mint      string `json:"mint,omitempty"`
	RawAmount uint64 `json:"raw_amount,omitempty"`
	Lamports  uint64 `json:"lamports"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason,omitempty"`
}

func buildScanReport(wallet solana.PublicKey, result *scanner.Result) *scanReport {
	report := &scanReport{
		Wallet:            wallet.String(),
		TotalAccounts:     result.Total(),
		CloseableCount:    len(result.Closeable(true)),
		PotentialLamports: result.PotentialReclaimLamports,
		PotentialSOL:      fees.SOL(result.PotentialReclaimLamports),
		RiskLevel:         result.RiskLevel.String(),
		Warnings:          result.Warnings,
	}
	for _, acct := range result.All() {
		entry := scanReportAccount{
			Address:  acct.Address.String(),
			Kind:     acct.Kind.String(),
			Lamports: acct.Lamports,
			Verdict:  verdictString(acct.Closeability.Verdict),
			Reason:   acct.Closeability.Reason,
		}
		if acct.Token != nil {
			entry.Mint = acct.Token.Mint.String()
			entry.RawAmount = acct.Token.RawAmount
			// A token account's lamport field is zero in the inventory;
			// its locked rent is the fixed exemption deposit.
			entry.Lamports = fees.RentExemptionLamports
		}
		report.Accounts = append(report.Accounts, entry)
	}
	return report
}

func verdictString(v scanner.Verdict) string {
	switch v {
	case scanner.VerdictCloseable:
		return "closeable"
	case scanner.VerdictCloseableWithWarning:
		return "closeable_with_warning"
	default:
		return "not_closeable"
	}
}

func printScanReport(report *scanReport) {
	fmt.Printf("Wallet: %s\n", report.Wallet)
	fmt.Printf("  Accounts found:    %d\n", report.TotalAccounts)
	fmt.Printf("  Closeable:         %d\n", report.CloseableCount)
	fmt.Printf("  Potential reclaim: %.9f SOL\n", report.PotentialSOL)
	fmt.Printf("  Risk level:        %s\n", report.RiskLevel)
	for _, warning := range report.Warnings {
		fmt.Printf("  Warning: %s\n", warning)
	}
	if len(report.Accounts) == 0 {
		fmt.Println("\nNo reclaimable accounts found")
		return
	}
	fmt.Println()
	for i, acct := range report.Accounts {
		fmt.Printf("[%d] %s\n", i+1, acct.Address)
		fmt.Printf("    Kind:    %s\n", acct.Kind)
		if acct.Mint != "" {
			fmt.Printf("    Mint:    %s\n", acct.Mint)
		}
		if acct.RawAmount > 0 {
			fmt.Printf("    Balance: %d (raw)\n", acct.RawAmount)
		}
		fmt.Printf("    Rent:    %.9f SOL\n", fees.SOL(acct.Lamports))
		fmt.Printf("    Verdict: %s\n", acct.Verdict)
		if acct.Reason != "" {
			fmt.Printf("    Reason:  %s\n", acct.Reason)
		}
		fmt.Println()
	}
}

// rpcFlags are the connection flags shared by the on-chain commands.
func rpcFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "rpc-url",
			Aliases: []string{"r"},
			Usage:   "Solana RPC endpoint (can be specified multiple times, priority order)",
			EnvVars: []string{"SOLANA_RPC_URLS"},
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Usage:   "Maximum RPC operations per second",
			EnvVars: []string{"RATE_LIMIT_RPS"},
			Value:   solclient.DefaultRatePerSecond,
		},
	}
}

// newSolanaClient builds the rate-limited failover client from CLI flags.
// The returned cleanup stops the limiter.
func newSolanaClient(c *cli.Context, logger *slog.Logger) (*solclient.Client, func(), error) {
	urls := c.StringSlice("rpc-url")
	if len(urls) == 0 {
		return nil, nil, fmt.Errorf("at least one --rpc-url is required (or set SOLANA_RPC_URLS)")
	}

	pool, err := solclient.NewPoolFromURLs(urls, nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create RPC pool: %w", err)
	}
	limiter := solclient.NewLimiter(c.Int("rate-limit"))
	return solclient.NewClient(pool, limiter, nil, logger), func() { limiter.Close() }, nil
}

// cliLogger only surfaces errors; stdout is reserved for command output.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// compileJQFilters parses and compiles each jq expression.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters runs every compiled filter against the value's JSON form.
// All filters must produce a truthy first result.
func matchesJQFilters(value interface{}, filters []*gojq.Code) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value for jq: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false, fmt.Errorf("failed to decode value for jq: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(decoded)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
