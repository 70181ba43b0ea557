package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AndrewLester/sntp/internal/ui"
	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/AndrewLester/sntp/pkg/ntpal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultHost = "pool.ntp.org"

var (
	version = "devel"

	log = ntpal.NewLogger(os.Stderr)

	port       int
	timeout    int
	bind       int
	ttl        int
	strict     bool
	configPath string
	output     string
	verbose    bool

	cmdRoot = &cobra.Command{
		Use:   "ntpal [command]",
		Short: "Simple NTP client",
		Long: `Query NTP servers for the offset of the local clock
and step the clock to match.`,
		PersistentPreRunE: preRun,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	cmdVersion = &cobra.Command{
		Use:   "version",
		Short: "Print the version number and exit.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s version %s\n", cmd.Root().Name(), version)
		},
	}
)

func init() {
	flags := cmdRoot.PersistentFlags()
	flags.IntVar(&port, "port", envPort(), "Server port.")
	flags.IntVar(&timeout, "timeout", int(ntpal.DefaultTimeout/time.Millisecond), "Time to wait for a reply, in milliseconds.")
	flags.IntVar(&bind, "bind", 0, "Local port to bind, 0 picks any free port.")
	flags.IntVar(&ttl, "ttl", 0, "IP TTL of the request, 0 keeps the system default.")
	flags.BoolVar(&strict, "strict", false, "Discard replies that do not echo the request's transmit timestamp.")
	flags.StringVar(&configPath, "config", "", "Path to an ntp.conf style server list.")
	flags.StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every step of the exchange.")

	cmdRoot.AddCommand(cmdVersion, cmdQuery, cmdSet, cmdCompare)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		cmdRoot.PrintErrln(ui.ErrorStyle("Error: " + err.Error()))
		stop()
		os.Exit(1)
	}
}

func preRun(cmd *cobra.Command, args []string) error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	switch output {
	case "text", "json", "yaml":
	default:
		return errors.Errorf("unknown output format %q", output)
	}
	return nil
}

func envPort() int {
	if p, err := strconv.Atoi(os.Getenv("NTP_PORT")); err == nil && p > 0 {
		return p
	}
	return ntp.Port
}

// servers lists the servers to try in order: hosts given as arguments, the
// config file, NTP_HOST, then pool.ntp.org. Flags override config values
// only when given explicitly.
func servers(cmd *cobra.Command, args []string) ([]ntpal.ServerConfig, error) {
	fromFlags := func(host string) ntpal.ServerConfig {
		return ntpal.ServerConfig{
			Host:      host,
			Port:      port,
			Timeout:   time.Duration(timeout) * time.Millisecond,
			LocalPort: bind,
			TTL:       ttl,
			Strict:    strict,
		}
	}

	if len(args) > 0 {
		list := make([]ntpal.ServerConfig, 0, len(args))
		for _, host := range args {
			list = append(list, fromFlags(host))
		}
		return list, nil
	}

	if configPath != "" {
		list, err := ntpal.ReadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.Errorf("%s lists no servers", configPath)
		}
		flags := cmd.Flags()
		for i := range list {
			if flags.Changed("port") {
				list[i].Port = port
			}
			if flags.Changed("timeout") {
				list[i].Timeout = time.Duration(timeout) * time.Millisecond
			}
			if flags.Changed("bind") {
				list[i].LocalPort = bind
			}
			if flags.Changed("ttl") {
				list[i].TTL = ttl
			}
			list[i].Strict = list[i].Strict || strict
		}
		return list, nil
	}

	host := os.Getenv("NTP_HOST")
	if host == "" {
		host = defaultHost
	}
	return []ntpal.ServerConfig{fromFlags(host)}, nil
}
