package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
)

func newFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <answer-file>",
		Short: "Print the feedback category derived from an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAnswer(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, ok := feedback.Derive(a)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "undefined")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c)
			return nil
		},
	}
}
