package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/plugin/compress"
	"github.com/ValentinKolb/uKV/lib/plugin/encrypt"
	"github.com/ValentinKolb/uKV/lib/plugin/expiry"
	"github.com/ValentinKolb/uKV/lib/plugin/quota"
	"github.com/ValentinKolb/uKV/lib/serializer"
	"github.com/ValentinKolb/uKV/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupInstanceFlags adds the common instance configuration flags to a
// command
func SetupInstanceFlags(cmd *cobra.Command) {
	key := "name"
	cmd.PersistentFlags().String(key, "ukv", WrapString("The database name, together with --store it forms the namespace of the instance"))

	key = "store"
	cmd.PersistentFlags().String(key, "keyvaluepairs", WrapString("The store name within the database"))

	key = "drivers"
	cmd.PersistentFlags().String(key, "bolt", WrapString("Ordered comma-separated driver candidate list (bolt, memory), the first supported one wins"))

	key = "path"
	cmd.PersistentFlags().String(key, "", WrapString("Path of the database file (bolt driver only, defaults to <name>.db)"))

	key = "durability"
	cmd.PersistentFlags().String(key, "strict", WrapString("Write durability: strict syncs every write transaction, relaxed defers syncing"))

	key = "max-batch-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("Split batches larger than this across multiple transactions (0 = never split)"))

	key = "max-concurrent-txns"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of concurrently open transactions (0 = unbounded)"))

	key = "connection-idle"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Close the backend connection after this idle period, reopen on demand (0 = keep open)"))

	key = "ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Expire every written value after this duration (0 = keep forever)"))

	key = "quota"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Capacity ceiling in bytes, least recently used entries are evicted to stay below it (0 = unlimited)"))

	key = "compress"
	cmd.PersistentFlags().Bool(key, false, WrapString("Transparently compress stored values"))

	key = "encrypt-key"
	cmd.PersistentFlags().String(key, "", WrapString("AES key for transparent value encryption (16, 24 or 32 bytes)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ukv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetInstanceConfig assembles the instance configuration from viper
func GetInstanceConfig() store.Config {
	cfg := store.Config{
		Config: driver.Config{
			Name:                      viper.GetString("name"),
			StoreName:                 viper.GetString("store"),
			Drivers:                   strings.Split(viper.GetString("drivers"), ","),
			Durability:                driver.Durability(viper.GetString("durability")),
			MaxBatchSize:              viper.GetInt("max-batch-size"),
			MaxConcurrentTransactions: viper.GetInt("max-concurrent-txns"),
			ConnectionIdle:            viper.GetDuration("connection-idle"),
			Options:                   map[string]interface{}{},
		},
	}
	if path := viper.GetString("path"); path != "" {
		cfg.Options["path"] = path
	}

	if ttl := viper.GetDuration("ttl"); ttl > 0 {
		cfg.Plugins = append(cfg.Plugins, expiry.New(expiry.Options{
			DefaultTTL:    ttl,
			SweepInterval: time.Minute,
		}))
	}
	if viper.GetBool("compress") {
		cfg.Plugins = append(cfg.Plugins, compress.New(compress.Options{}))
	}
	if key := viper.GetString("encrypt-key"); key != "" {
		cfg.Plugins = append(cfg.Plugins, encrypt.New(encrypt.Options{Key: []byte(key)}))
	}
	if max := viper.GetInt64("quota"); max > 0 {
		cfg.Plugins = append(cfg.Plugins, quota.New(quota.Options{MaxSize: max}))
	}

	return cfg
}

// GetSerializer creates a value serializer based on configuration. The raw
// encoding passes bytes through unchanged.
func GetSerializer() (serializer.ISerializer, error) {
	switch viper.GetString("encoding") {
	case "raw":
		return nil, nil
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid encoding %s", viper.GetString("encoding"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
