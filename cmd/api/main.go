package main

import (
	"os"

	"github.com/spf13/cobra"
)

// @title           Expense Approval API
// @version         1.0
// @description     Expense claims routed through configurable multi-level approval rules.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var rootCmd = &cobra.Command{
	Use:   "expenseflow",
	Short: "Expense claim approval service",
	Long: `expenseflow serves the expense claim API: approval rules, claim submission
and approver decisions, with live updates over websocket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: ./config.yaml or ./configs/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
