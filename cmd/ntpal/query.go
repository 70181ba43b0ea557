package main

import (
	"context"

	"github.com/AndrewLester/sntp/pkg/ntpal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cmdQuery = &cobra.Command{
		Use:   "query [host...]",
		Short: "Print the offset of the local clock from an NTP server.",
		Long: `Query each host in turn until one answers. A host that
times out, cannot be reached or sends a kiss-o'-death is skipped.`,
		RunE: runQuery,
	}

	cmdSet = &cobra.Command{
		Use:   "set [host...]",
		Short: "Step the local clock to an NTP server's time.",
		Long: `Query like "query" and step the system clock by the
offset of the first host to answer. Needs permission to set the clock.`,
		RunE: runSet,
	}
)

type exchangeFunc func(c *ntpal.Client, ctx context.Context, host string) (*ntpal.QueryResult, error)

func runQuery(cmd *cobra.Command, args []string) error {
	return exchange(cmd, args, (*ntpal.Client).Query)
}

func runSet(cmd *cobra.Command, args []string) error {
	return exchange(cmd, args, (*ntpal.Client).SetTime)
}

func exchange(cmd *cobra.Command, args []string, fn exchangeFunc) error {
	list, err := servers(cmd, args)
	if err != nil {
		return err
	}

	var result *ntpal.QueryResult
	if showProgress(cmd) {
		result, err = runWithProgress(cmd.Context(), list, fn)
	} else {
		result, err = firstAnswer(cmd.Context(), list, fn, nil)
	}
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), result)
}

// firstAnswer tries each server until one answers. Only failures that a
// different server could fix move on to the next one. The index of each
// server is sent on tries, if non-nil, before it is queried.
func firstAnswer(ctx context.Context, list []ntpal.ServerConfig, fn exchangeFunc, tries chan<- int) (*ntpal.QueryResult, error) {
	var lastErr error
	for i, server := range list {
		select {
		case tries <- i:
		default:
		}
		client := ntpal.NewClient(append(server.Options(), ntpal.WithLogger(log))...)

		result, err := fn(client, ctx, server.Host)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !ntpal.Retryable(err) && !errors.Is(err, ntpal.ErrKissOfDeath) {
			return nil, err
		}
		log.WithError(err).WithField("host", server.Host).Warn("Trying next server")
	}
	return nil, lastErr
}
