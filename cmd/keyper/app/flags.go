package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keyper-oauth/keyper/internal/config"
)

// flagKeys maps flag names to the configuration keys they override
var flagKeys = map[string]string{
	"debug":        "log.debug",
	"log-format":   "log.format",
	"port":         "port",
	"issuer":       "issuer",
	"clients":      "clients_file",
	"store":        "storage.driver",
	"sqlite-path":  "storage.sqlite.path",
	"redis-addr":   "storage.redis.addr",
	"metrics-addr": "telemetry.metrics_addr",
}

// addServerFlags registers the flags shared by serve and validate
func addServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntP("port", "p", 3000, "Port to listen on")
	flags.String("issuer", "http://localhost:3000", "Issuer identifier (base URL) of this server")
	flags.String("clients", "", "Path to the clients file (YAML)")
	flags.String("store", "memory", "Grant store: memory, sqlite or redis")
	flags.String("sqlite-path", "keyper.db", "SQLite database path for the sqlite store")
	flags.String("redis-addr", "localhost:6379", "Redis address for the redis store")
	flags.String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
}

// loadConfig binds the running command's flags and loads the configuration
// named by --config. Binding happens here, not at construction, because serve
// and validate define flags of the same name.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(v, path)
}
