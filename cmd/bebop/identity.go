package main

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/bebop/internal/tofu"
	"github.com/nao1215/bebop/internal/uri"
)

// NewIdentityCmd creates the identity command and its subcommands.
func NewIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage client certificates",
		Long: `Identity manages the client certificates presented to Gemini servers
that ask for one (status 60).

An identity belongs to a host, a port and a path scope. It is presented
for every URL on that host whose path lies under the scope; when
several identities match, the one with the longest scope wins.

Examples:
  bebop identity create alice gemini://station.example/
  bebop identity create --days 30 bob gemini://example.org/app
  bebop identity list
  bebop identity remove 0b4f6a5e-3d1c-4c88-9f4e-2f7d0d5a8c11`,
	}

	cmd.AddCommand(newIdentityListCmd())
	cmd.AddCommand(newIdentityCreateCmd())
	cmd.AddCommand(newIdentityRemoveCmd())
	return cmd
}

func newIdentityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List client identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTrustStore(cmd, func(_ context.Context, store *tofu.Store) error {
				ids := store.Identities()
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No identities.")
					return nil
				}
				slices.SortFunc(ids, func(a, b tofu.Identity) int {
					return strings.Compare(a.ID, b.ID)
				})

				now := time.Now()
				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					expires := formatDate(id.Expires)
					if id.Expired(now) {
						expires += " (expired)"
					}
					rows = append(rows, []string{
						id.ID,
						id.Name,
						net.JoinHostPort(id.Host, strconv.Itoa(id.Port)),
						id.PathScope,
						expires,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), newTable("ID", "NAME", "HOST", "SCOPE", "EXPIRES").Rows(rows...))
				return nil
			})
		},
	}
}

func newIdentityCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME URL",
		Short: "Create a client identity for a URL",
		Long: `Create generates a self-signed certificate named NAME and presents it
to the host of URL for every path under the path of URL.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := cmd.Flags().GetInt("days")
			if err != nil {
				return err
			}
			if days < 0 {
				return fmt.Errorf("invalid validity: %d days", days)
			}

			u, err := uri.ParseInput(args[1], uri.SchemeGemini)
			if err != nil {
				return err
			}
			if u.Scheme != uri.SchemeGemini {
				return fmt.Errorf("identities are only used for gemini URLs, got %s", u.Scheme)
			}

			generated, err := tofu.GenerateIdentity(args[0], u.Host, u.EffectivePort(), u.Path,
				time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}

			return withTrustStore(cmd, func(ctx context.Context, store *tofu.Store) error {
				id, err := store.AddIdentity(ctx, *generated)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created identity %q (%s)\n", id.Name, id.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "  scope:       %s%s\n", u.Root(), strings.TrimPrefix(id.PathScope, "/"))
				fmt.Fprintf(cmd.OutOrStdout(), "  fingerprint: %s\n", id.Fingerprint())
				fmt.Fprintf(cmd.OutOrStdout(), "  expires:     %s\n", formatDate(id.Expires))
				return nil
			})
		},
	}

	cmd.Flags().IntP("days", "d", int(tofu.DefaultIdentityValidity/(24*time.Hour)),
		"Number of days the certificate is valid")
	return cmd
}

func newIdentityRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a client identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity ID %q: %w", args[0], err)
			}
			return withTrustStore(cmd, func(ctx context.Context, store *tofu.Store) error {
				if err := store.RemoveIdentity(ctx, id.String()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed identity %s\n", id)
				return nil
			})
		},
	}
}
