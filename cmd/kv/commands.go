package kv

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/uKV/cmd/util"
	"github.com/spf13/cobra"
)

// encodeValue runs a raw argument through the configured value encoding.
func encodeValue(raw string) ([]byte, error) {
	s, err := util.GetSerializer()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return []byte(raw), nil
	}
	return s.Serialize(raw)
}

// decodeValue reverses encodeValue for display.
func decodeValue(stored []byte) (string, error) {
	s, err := util.GetSerializer()
	if err != nil {
		return "", err
	}
	if s == nil {
		return string(stored), nil
	}
	var out string
	if err := s.Deserialize(stored, &out); err != nil {
		return "", err
	}
	return out, nil
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := encodeValue(args[1])
			if err != nil {
				return err
			}
			if err := instance.SetItem(key, value); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, found, err := instance.GetItem(key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			decoded, err := decodeValue(value)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, value=%s\n", key, decoded)
			return nil
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [key]...",
		Short: "Removes one or more key-value pairs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := instance.RemoveItem(args[0]); err != nil {
					return err
				}
			} else if err := instance.RemoveItems(args); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if _, found, err := instance.GetItem(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "Lists all keys of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := instance.Keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	lenCmd = &cobra.Command{
		Use:   "len",
		Short: "Prints the number of stored key-value pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := instance.Length()
			if err != nil {
				return err
			}
			fmt.Println(strconv.Itoa(n))
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all key-value pairs of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	dropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Drops the whole instance including its stored data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := instance.DropInstance(); err != nil {
				return err
			}
			fmt.Println("dropped successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints backend information of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := instance.GetInfo()
			fmt.Printf("driver=%s, entries=%d, size=%dB\n", info.Driver, info.EntryCount, info.SizeBytes)
			fmt.Printf("features=%v\n", info.SupportedFeatures)
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints instance metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return instance.WriteStats(os.Stdout)
		},
	}
)
