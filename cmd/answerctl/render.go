package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
)

func newRenderCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		asHTML   bool
		sanitize bool
		width    int
		style    string
	)
	cmd := &cobra.Command{
		Use:   "render <answer-file>",
		Short: "Render an answer for the terminal or as HTML",
		Long: `Resolves citation markers in the answer and renders it.
By default the answer is drawn for the terminal with a numbered reference
list; --html prints the sanitized, highlighted HTML instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()
			a, err := loadAnswer(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			parsed := parseAnswer(a, log)

			if asHTML {
				doc, err := render.NewPipeline(render.Config{}, log).Render(parsed, render.Options{Sanitize: sanitize})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), doc.HTML)
				return nil
			}

			tr, err := render.NewTerminalRenderer(width, style)
			if err != nil {
				return err
			}
			out, err := tr.Render(parsed)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "print HTML instead of terminal output")
	cmd.Flags().BoolVar(&sanitize, "sanitize", true, "sanitize the answer before rendering HTML")
	cmd.Flags().IntVarP(&width, "width", "w", 100, "terminal word-wrap width")
	cmd.Flags().StringVar(&style, "style", "", "glamour style (default: detect from terminal)")
	return cmd
}
