package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/uKV/cmd/kv"
	"github.com/ValentinKolb/uKV/cmd/util"
	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ukv",
		Short: "universal key-value storage",
		Long: fmt.Sprintf(`uKV (v%s)

A key-value storage library written in Go that drives interchangeable
backends through one uniform API, with transparent expiry, compression,
encryption and quota enforcement layered on as plugins.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of uKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("uKV v%s\n", Version)
		},
	}
	driversCmd = &cobra.Command{
		Use:   "drivers",
		Short: "Lists all compiled-in storage drivers",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range driver.Registered() {
				fmt.Println(name)
			}
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(driversCmd)

	// Add Flags
	key := "encoding"
	RootCmd.PersistentFlags().String(key, "raw", util.WrapString("value encoding to use (raw, json, gob)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
