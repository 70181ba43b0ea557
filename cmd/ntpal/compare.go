package main

import (
	"fmt"
	"time"

	"github.com/AndrewLester/sntp/internal/ui"
	"github.com/AndrewLester/sntp/pkg/ntpal"
	"github.com/beevik/ntp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdCompare = &cobra.Command{
	Use:   "compare [host]",
	Short: "Check our offset against the beevik/ntp client.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCompare,
}

type comparison struct {
	Server     string        `json:"server" yaml:"server"`
	Offset     time.Duration `json:"offset" yaml:"offset"`
	Reference  time.Duration `json:"reference_offset" yaml:"reference_offset"`
	RTT        time.Duration `json:"reference_rtt" yaml:"reference_rtt"`
	Difference time.Duration `json:"difference" yaml:"difference"`
}

func runCompare(cmd *cobra.Command, args []string) error {
	list, err := servers(cmd, args)
	if err != nil {
		return err
	}
	server := list[0]

	result, err := firstAnswer(cmd.Context(), list[:1], (*ntpal.Client).Query, nil)
	if err != nil {
		return err
	}

	port := server.Port
	if port == 0 {
		port = ntpal.DefaultOptions().Port
	}
	reference, err := ntp.QueryWithOptions(server.Host, ntp.QueryOptions{
		Port:    port,
		Timeout: server.Timeout,
		TTL:     server.TTL,
	})
	if err != nil {
		return errors.Wrap(err, "reference query")
	}
	if err := reference.Validate(); err != nil {
		return errors.Wrap(err, "reference reply")
	}

	c := comparison{
		Server:     server.Host,
		Offset:     result.ClockOffset(),
		Reference:  reference.ClockOffset,
		RTT:        reference.RTT,
		Difference: result.ClockOffset() - reference.ClockOffset,
	}
	log.WithField("difference", c.Difference).Debug("Compared offsets")

	w := cmd.OutOrStdout()
	if output != "text" {
		return encode(w, c)
	}

	fmt.Fprintln(w, ui.TitleStyle("NTPal - Compare "+c.Server))
	fmt.Fprintf(w, "%-8s %s\n", "ntpal", ui.OffsetStyle(signed(c.Offset)))
	fmt.Fprintf(w, "%-8s %s %s\n", "beevik", ui.OffsetStyle(signed(c.Reference)), ui.HelpStyle("rtt "+c.RTT.String()))
	fmt.Fprintln(w, ui.HelpStyle("Whole seconds only, differences under 1s are expected."))
	return nil
}
