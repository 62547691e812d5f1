package main

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/bebop/internal/tofu"
	"github.com/nao1215/bebop/internal/uri"
)

// NewTrustCmd creates the trust command and its subcommands.
func NewTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage pinned server certificates",
		Long: `Trust lists and edits the certificate pins of Gemini servers.

A pin is recorded the first time bebop connects to a host and port.
When the server later presents a different certificate, bebop refuses
to connect until the pin is replaced with "trust repin" or removed with
"trust forget".

Examples:
  bebop trust list
  bebop trust repin example.org 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
  bebop trust forget example.org:1966`,
	}

	cmd.AddCommand(newTrustListCmd())
	cmd.AddCommand(newTrustRepinCmd())
	cmd.AddCommand(newTrustForgetCmd())
	return cmd
}

func newTrustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pinned certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTrustStore(cmd, func(_ context.Context, store *tofu.Store) error {
				pins := store.Pins()
				if len(pins) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pinned certificates.")
					return nil
				}
				slices.SortFunc(pins, func(a, b tofu.Pin) int {
					if c := strings.Compare(a.Host, b.Host); c != 0 {
						return c
					}
					return a.Port - b.Port
				})

				rows := make([][]string, 0, len(pins))
				for _, p := range pins {
					rows = append(rows, []string{
						net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
						p.Fingerprint,
						store.State(p.Host, p.Port).String(),
						formatDate(p.LastSeen),
						formatDate(p.NotAfter),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), newTable("HOST", "FINGERPRINT (SHA-256)", "STATE", "LAST SEEN", "EXPIRES").Rows(rows...))
				return nil
			})
		},
	}
}

func newTrustRepinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repin HOST[:PORT] FINGERPRINT",
		Short: "Replace the pin of a host with a new fingerprint",
		Long: `Repin replaces the pinned certificate of HOST with the certificate
whose SHA-256 fingerprint is FINGERPRINT. The fingerprint is printed
by bebop when it refuses a changed certificate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := parseHostPort(args[0])
			if err != nil {
				return err
			}
			fingerprint := strings.ToLower(strings.TrimSpace(args[1]))
			if !isFingerprint(fingerprint) {
				return fmt.Errorf("invalid fingerprint %q: expected 64 hexadecimal characters", args[1])
			}
			return withTrustStore(cmd, func(ctx context.Context, store *tofu.Store) error {
				if err := store.Repin(ctx, host, port, fingerprint); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s to %s\n", net.JoinHostPort(host, strconv.Itoa(port)), fingerprint)
				return nil
			})
		},
	}
}

func newTrustForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget HOST[:PORT]",
		Short: "Remove the pin of a host",
		Long: `Forget removes the pinned certificate of HOST. The next certificate
the host presents is pinned on first use again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := parseHostPort(args[0])
			if err != nil {
				return err
			}
			return withTrustStore(cmd, func(ctx context.Context, store *tofu.Store) error {
				if err := store.Forget(ctx, host, port); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", net.JoinHostPort(host, strconv.Itoa(port)))
				return nil
			})
		},
	}
}

// withTrustStore opens the trust store, runs fn and closes the store.
func withTrustStore(cmd *cobra.Command, fn func(context.Context, *tofu.Store) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd, cfg)
	store, db, err := openTrustStore(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeTrustStore(ctx, store, db); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, store)
}

// parseHostPort splits "host", "host:port" or "[v6]:port". The port
// defaults to the Gemini port.
func parseHostPort(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		host, portStr = strings.Trim(s, "[]"), ""
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid host %q", s)
	}

	port := uri.GeminiDefaultPort
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return "", 0, fmt.Errorf("invalid port in %q", s)
		}
	}
	return strings.ToLower(host), port, nil
}

// isFingerprint reports whether s is a lowercase hex SHA-256 digest.
func isFingerprint(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// newTable returns a bordered table with the given headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

// formatDate formats t as a date, or "-" for the zero time.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}
