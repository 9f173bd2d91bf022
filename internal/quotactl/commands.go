package quotactl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// ErrDenied is returned by the check command when the admission is denied,
// so scripts can branch on the exit status.
var ErrDenied = errors.New("admission denied")

const defaultServer = "http://localhost:8080"

type options struct {
	server  string
	timeout time.Duration
	output  string
	out     io.Writer
}

func (o *options) client() *Client {
	return NewClient(o.server, &http.Client{Timeout: o.timeout})
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *options) print(v any) error {
	return render(o.out, o.output, v)
}

// NewCommand builds the quotactl root command.
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "quotactl",
		Short:         "Inspect and manage project quotas through the quotaledger admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.out = cmd.OutOrStdout()
		},
	}

	server := os.Getenv("QUOTALEDGER_URL")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "Admin API base URL (env QUOTALEDGER_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format. One of: table|json|yaml")

	cmd.AddCommand(
		newQuotaCommand(opts),
		newUsageCommand(opts),
		newCheckCommand(opts),
		newExpirationCommand(opts),
	)
	return cmd
}

func newQuotaCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Read and change quota limits",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list PROJECT",
		Short: "Show every limit of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			quotas, err := opts.client().ListQuotas(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(quotas)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get PROJECT KIND",
		Short: "Show one limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			quota, err := opts.client().GetQuota(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return opts.print(quota)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set PROJECT KIND LIMIT",
		Short: "Replace one limit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("limit %q is not an integer", args[2])
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			quota, err := opts.client().SetQuota(ctx, args[0], args[1], limit)
			if err != nil {
				return err
			}
			return opts.print(quota)
		},
	})

	var historyLimit int
	history := &cobra.Command{
		Use:   "history PROJECT KIND",
		Short: "Show recorded limit changes, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			changes, err := opts.client().QuotaHistory(ctx, args[0], args[1], historyLimit)
			if err != nil {
				return err
			}
			return opts.print(changes)
		},
	}
	history.Flags().IntVar(&historyLimit, "limit", 0, "Maximum number of changes to show")
	cmd.AddCommand(history)

	return cmd
}

func newUsageCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage PROJECT KIND",
		Short: "Count live usage from the resource backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			usage, err := opts.client().GetUsage(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return opts.print(usage)
		},
	}
}

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check PROJECT KIND DELTA",
		Short: "Ask whether DELTA more units would fit in the quota",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("delta %q is not an integer", args[2])
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			decision, err := opts.client().CheckAdmission(ctx, args[0], args[1], delta)
			if err != nil {
				return err
			}
			if err := opts.print(decision); err != nil {
				return err
			}
			if !decision.Admitted {
				return ErrDenied
			}
			return nil
		},
	}
}

func newExpirationCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiration",
		Short: "Read and record project expiration dates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get PROJECT",
		Short: "Show the expiration date of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			exp, err := opts.client().GetExpiration(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(exp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set PROJECT YYYY-MM-DD",
		Short: "Record the expiration date of a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			exp, err := opts.client().SetExpiration(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return opts.print(exp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every recorded expiration date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			exps, err := opts.client().ListExpirations(ctx)
			if err != nil {
				return err
			}
			return opts.print(exps)
		},
	})

	return cmd
}
