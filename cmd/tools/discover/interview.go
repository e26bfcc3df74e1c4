package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagPerspective string
	flagNotes       string
)

var interviewCmd = &cobra.Command{
	Use:   "interview <persona-id>",
	Short: "Run the scripted interview and summary for one persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if cmd.Flags().Changed("perspective") {
			if err := application.Discovery.SetPerspective(cmd.Context(), id, flagPerspective); err != nil {
				return err
			}
		}
		if err := application.Discovery.RunInterview(cmd.Context(), id); err != nil {
			return err
		}
		p, err := application.Discovery.LoadPersona(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Interviewed %s\n\n%s\n", p.DisplayName(), p.Card().InterviewSummary)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize all interviews and propose follow-up questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := application.Discovery.GenerateInterviewSummary(cmd.Context(), flagNotes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nFollow-up questions:\n%s\n", sess.InterviewSummary, sess.FollowUps)
		return nil
	},
}

var followUpsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Ask every persona the follow-up questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Discovery.AskFollowUps(cmd.Context()); err != nil {
			return err
		}
		for _, p := range application.Discovery.Personas() {
			fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n%s\n\n", p.DisplayName(), p.Card().FollowUpsAnswer)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <persona-id>",
	Short: "Print a persona with its transcript as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := application.Discovery.LoadPersona(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p.Snapshot())
	},
}

func init() {
	interviewCmd.Flags().StringVar(&flagPerspective, "perspective", "", "Perspective note stored before interviewing")
	summaryCmd.Flags().StringVar(&flagNotes, "notes", "", "Operator notes included in the rollup")
	rootCmd.AddCommand(interviewCmd, summaryCmd, followUpsCmd, showCmd)
}
