package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
)

var (
	flagProduct  string
	flagCustomer string
	flagAPIKey   string
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Manage the persona roster",
}

var personasGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate five personas from a product pitch and customer description",
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := application.Discovery.GenerateCustomers(cmd.Context(), flagProduct, flagCustomer, flagAPIKey)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d personas\n", len(created))
		return writeRoster(cmd.OutOrStdout(), created)
	},
}

var personasResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every persona",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Discovery.ResetPersonas(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Roster cleared")
		return nil
	},
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeRoster(cmd.OutOrStdout(), application.Discovery.Personas())
	},
}

func init() {
	personasGenerateCmd.Flags().StringVar(&flagProduct, "product", "", "Product elevator pitch")
	personasGenerateCmd.Flags().StringVar(&flagCustomer, "customer", "", "Target customer description")
	personasGenerateCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Completion API key (defaults to the server key)")

	personasCmd.AddCommand(personasGenerateCmd, personasResetCmd, personasListCmd)
	rootCmd.AddCommand(personasCmd)
}

func writeRoster(w io.Writer, personas []*interview.Persona) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tABOUT")
	for _, p := range personas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID(), p.DisplayName(), p.State(), p.DisplayAbout())
	}
	return tw.Flush()
}
