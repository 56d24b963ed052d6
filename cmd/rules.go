package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epcnet/upf/internal/router"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <rule>...",
	Short: "Parse matching rules and print how they were understood",
	Long: `A rule is <protocol>-<address>/<mask>-<port>, where protocol and port
may be "*". Example: 6-192.168.1.0/24-80 matches TCP to port 80 on
192.168.1.0/24.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var firstErr error
		for _, text := range args {
			rule, err := router.ParseMatchingRule(text)
			if err != nil {
				fmt.Printf("%-30s INVALID: %v\n", text, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			proto := "any"
			if rule.Protocol != 0 {
				proto = fmt.Sprintf("%d", rule.Protocol)
			}
			port := "any"
			if rule.DstPort != 0 {
				port = fmt.Sprintf("%d", rule.DstPort)
			}
			fmt.Printf("%-30s proto %s, dst %s, port %s\n", text, proto, rule.DstCIDR, port)
		}
		return firstErr
	},
}
