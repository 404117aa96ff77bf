package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/reviewledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultServer = "http://localhost:8080"

var (
	serverURL    string
	sessionToken string
	outputFormat string
	cfgFile      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "review",
	Short: "Review ledger CLI",
	Long: `review is the command-line interface for a reviewd server.

Start a session, then submit reviews through the ledger gate. Reviews the
ledger rejects as duplicates or repeat reviewers are never scored.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".review"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("review")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = defaultServer
		}
		if sessionToken == "" {
			sessionToken = viper.GetString("token")
		}
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("--format must be text or json, got %q", outputFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.review/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "reviewd base URL (default "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "token", "", "session token (default from config or REVIEW_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if sessionToken != "" {
		opts = append(opts, client.WithSessionToken(sessionToken))
	}
	return client.New(serverURL, opts...)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── session ──────────────────────────────────────────────────────────────────

var sessionSave bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start a new ledger session",
	Long: `Start a new session on the server. The session owns a fresh ledger that
remembers every accepted review until it ends or goes idle.

Use --save to store the token in the config file for later commands.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().BoolVar(&sessionSave, "save", false, "Write the session token to the config file")
}

func runSession(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	s, err := c.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if sessionSave {
		if err := saveToken(s.Token); err != nil {
			return err
		}
	}

	if outputFormat == "json" {
		return printJSON(s)
	}
	fmt.Printf("Session:  %s\n", s.SessionID)
	fmt.Printf("Policy:   %s\n", s.Policy)
	fmt.Printf("Expires:  %s\n", s.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Token:    %s\n", s.Token)
	if !sessionSave {
		fmt.Println("\nPass --token or set REVIEW_TOKEN to use this session.")
	}
	return nil
}

func saveToken(token string) error {
	viper.Set("token", token)
	if path := viper.ConfigFileUsed(); path != "" {
		return viper.WriteConfigAs(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("locate home directory: %w", err)
	}
	dir := filepath.Join(home, ".review")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Token saved to %s\n", path)
	return nil
}

// ── end ──────────────────────────────────────────────────────────────────────

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current session and discard its ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := c.EndSession(ctx); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		fmt.Println("Session ended.")
		return nil
	},
}

// ── submit / check ───────────────────────────────────────────────────────────

var (
	reviewUser    string
	reviewProduct string
)

var submitCmd = &cobra.Command{
	Use:   "submit <review text>",
	Short: "Submit a review through the ledger gate",
	Long: `Submit a review. The server's ledger policy decides whether it is
appended; only accepted reviews reach the scoring oracle.

  review submit --user U1 --product P1 "Fantastic build quality."`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var checkCmd = &cobra.Command{
	Use:   "check <review text>",
	Short: "Check whether an identical review is already on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{submitCmd, checkCmd} {
		cmd.Flags().StringVar(&reviewUser, "user", "", "Reviewer user ID (required)")
		cmd.Flags().StringVar(&reviewProduct, "product", "", "Product ID")
		_ = cmd.MarkFlagRequired("user")
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	res, err := c.Submit(ctx, client.Review{UserID: reviewUser, ProductID: reviewProduct, Review: args[0]})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if outputFormat == "json" {
		return printJSON(res)
	}

	if !res.Accepted {
		fmt.Printf("Rejected (%s): %s\n", res.Decision, res.Message)
		return nil
	}
	if res.Record != nil {
		fmt.Printf("Accepted as record #%d\n", res.Record.Sequence)
		fmt.Printf("Seal:        %s\n", res.Record.Seal)
	}
	if res.Verdict != nil {
		fmt.Printf("Verdict:     %s\n", res.Verdict.Label)
		fmt.Printf("Confidence:  %.1f%%\n", res.Verdict.Confidence*100)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	dup, err := c.Check(ctx, client.Review{UserID: reviewUser, ProductID: reviewProduct, Review: args[0]})
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if outputFormat == "json" {
		return printJSON(map[string]bool{"duplicate": dup})
	}
	if dup {
		fmt.Println("Duplicate: this exact review is already on the ledger.")
	} else {
		fmt.Println("Not a duplicate.")
	}
	return nil
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accepted reviews in insertion order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		recs, err := c.Reviews(ctx)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(recs)
		}
		if len(recs) == 0 {
			fmt.Println("No reviews yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tUSER\tPRODUCT\tREVIEW")
		fmt.Fprintln(w, "---\t----\t-------\t------")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Sequence, r.Payload.UserID, orDash(r.Payload.ProductID), truncate(r.Payload.Review, 60))
		}
		return w.Flush()
	},
}

// ── ledger / verify ──────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger [seq]",
	Short: "Show the ledger overview, or a single record by sequence number",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		if len(args) == 1 {
			seq, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid sequence number %q", args[0])
			}
			rec, err := c.Record(ctx, seq)
			if err != nil {
				return fmt.Errorf("get record: %w", err)
			}
			if outputFormat == "json" {
				return printJSON(rec)
			}
			fmt.Printf("Sequence:       %d\n", rec.Sequence)
			fmt.Printf("Created:        %s\n", rec.CreatedAt.Format(time.RFC3339Nano))
			fmt.Printf("User:           %s\n", rec.Payload.UserID)
			fmt.Printf("Product:        %s\n", orDash(rec.Payload.ProductID))
			fmt.Printf("Review:         %s\n", rec.Payload.Review)
			fmt.Printf("Previous seal:  %s\n", rec.PreviousSeal)
			fmt.Printf("Seal:           %s\n", rec.Seal)
			return nil
		}

		o, err := c.Ledger(ctx)
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(o)
		}
		fmt.Printf("Policy:   %s\n", o.Policy)
		fmt.Printf("Records:  %d\n", o.Records)
		fmt.Printf("Root:     %s\n", o.Root)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of the current ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		v, err := c.Verify(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if outputFormat == "json" {
			if err := printJSON(v); err != nil {
				return err
			}
		} else if v.Valid {
			fmt.Println("Ledger chain is intact.")
		} else {
			fmt.Printf("Ledger chain is BROKEN: %s\n", v.Error)
		}
		if !v.Valid {
			return errors.New("ledger integrity check failed")
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("review %s\n", version)
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
