package kv

import (
	"github.com/ValentinKolb/uKV/cmd/util"
	"github.com/ValentinKolb/uKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	instance store.IInstance

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations on an instance",
		PersistentPreRunE: setupInstance,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if instance == nil {
				return nil
			}
			return instance.Destroy()
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common instance flags to the KV command
	util.SetupInstanceFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(rmCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(lsCmd)
	KeyValueCommands.AddCommand(lenCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(dropCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(statsCmd)
}

// setupInstance creates the configured instance
func setupInstance(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	instance, err = store.CreateInstance(util.GetInstanceConfig())
	return err
}
