// Package cmd implements the CLI commands using the cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/epcnet/upf/internal/config"
	"github.com/epcnet/upf/internal/log"
)

var (
	configFile string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "upf",
	Short: "UPF packet router for 4G/LTE user-plane traffic",
	Long: `upf sits on the wire between eNodeBs and the EPC. It learns GTPv1-U
tunnel endpoints per UE by watching S1-AP Initial Context Setup
exchanges, and uses that map to decapsulate GTPv1-U payloads of known
UEs and to re-encapsulate plain IPv4 traffic into the right tunnel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		return log.Init(cfg.Log)
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override the configured log level")

	rootCmd.AddCommand(encapCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(rulesCmd)
}
