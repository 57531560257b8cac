// Command chain loads, migrates and checksums chain documents from the
// command line, and manages the saved chain library when DATABASE_URL is set.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chain-keeper/internal/config"
	"chain-keeper/internal/logger"
)

type app struct {
	configPath string
	verbose    bool

	cfg config.Config
	log *logger.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chain",
		Short:         "Inspect, migrate and store chain documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("CHAIN_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log migration steps and warnings to stderr")

	root.AddCommand(
		a.loadCmd(),
		a.migrateCmd(),
		a.checksumCmd(),
		a.presetsCmd(),
		a.saveCmd(),
		a.getCmd(),
		a.listCmd(),
		a.verifyCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logger.Nop()
	if a.verbose {
		lg, err := logger.New("dev")
		if err != nil {
			return err
		}
		a.log = lg
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
