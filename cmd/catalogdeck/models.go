package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func modelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List Gemini models that can answer questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, _, err := a.newAssistant(cmd.Context(), a)
			if err != nil {
				return err
			}
			names, err := assistant.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
