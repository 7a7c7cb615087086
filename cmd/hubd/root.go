// Command hubd runs the device-tree hub: the authoritative in-memory
// Device Tree, its extension and client sockets, and the diagnostic HTTP
// server. Flag and subcommand wiring follows this codebase's cobra
// convention (see ap-factory): a root command carrying persistent flags,
// one subcommand per mode of operation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir       string
	extensionsDir string
	clientAddr    string
	diagAddr      string
	coreMSIC      uint16
	logLevel      string
)

func main() {
	root := &cobra.Command{
		Use:   "hubd",
		Short: "hubd is the device-tree hub core",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/hubd",
		"directory holding devices.json and groups.json")
	root.PersistentFlags().StringVar(&extensionsDir, "extensions-dir", "/var/lib/hubd/extensions",
		"directory whose subdirectories are per-extension working directories")
	root.PersistentFlags().StringVar(&clientAddr, "client-addr", "localhost:4368",
		"address the client query socket listens on")
	root.PersistentFlags().StringVar(&diagAddr, "diag-addr", ":4369",
		"address the diagnostic HTTP server (metrics, /debug/tree) listens on")
	root.PersistentFlags().Uint16Var(&coreMSIC, "msic", 63,
		"maximum supported ComponentType ID this core negotiates with extensions")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	root.AddCommand(newServeCmd())
	root.AddCommand(newCheckStateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
