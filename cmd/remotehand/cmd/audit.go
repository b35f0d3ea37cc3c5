package cmd

import "github.com/spf13/cobra"

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log inspection tools",
	Long:  `Commands for inspecting the audit events an agent writes to its log.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
