// Command puppeteer is the CLI client for puppeteerd.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoCodeAlone/puppeteer/internal/version"
	"github.com/GoCodeAlone/puppeteer/update"
)

const defaultServer = "http://localhost:3000"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// cli carries the settings shared by every subcommand.
type cli struct {
	v       *viper.Viper
	out     io.Writer
	client  *Client
	format  string
	checker *update.Checker
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	return buildRootCmd(out, errOut, update.New(version.Version))
}

func buildRootCmd(out, errOut io.Writer, checker *update.Checker) *cobra.Command {
	c := &cli{v: viper.New(), out: out, checker: checker}
	c.v.SetEnvPrefix("PUPPETEER")
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "puppeteer",
		Short:        "Command-line client for the puppeteer task board",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.client = newClient(c.v.GetString("server"))
			c.format = strings.ToLower(c.v.GetString("output"))
			_, err := encode(io.Discard, c.format, nil)
			return err
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("server", defaultServer, "puppeteerd URL (or $PUPPETEER_SERVER)")
	flags.StringP("output", "o", formatTable, "output format: table, json or yaml (or $PUPPETEER_OUTPUT)")
	_ = c.v.BindPFlag("server", flags.Lookup("server"))
	_ = c.v.BindPFlag("output", flags.Lookup("output"))

	root.AddCommand(
		c.statusCmd(),
		c.taskCmd(),
		c.agentCmd(),
		c.memoryCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...) //nolint:errcheck
}
