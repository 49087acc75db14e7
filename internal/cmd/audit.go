package cmd

import "github.com/spf13/cobra"

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the persisted decision audit trail",
}

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditPruneCmd)
	auditCmd.AddCommand(auditUsageCmd)
	rootCmd.AddCommand(auditCmd)
}
