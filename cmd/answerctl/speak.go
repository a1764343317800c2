package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/speech"
)

func newSpeakCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		endpoint string
		outDir   string
		payload  string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "speak <answer-file>",
		Short: "Synthesize an answer and save the audio as WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()
			mode, err := speech.ParsePayloadMode(payload)
			if err != nil {
				return err
			}
			a, err := loadAnswer(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if a.Generating() {
				return speech.ErrGenerating
			}
			text, err := mode.Text(parseAnswer(a, log))
			if err != nil {
				return err
			}

			if endpoint == "" {
				endpoint = os.Getenv("ANSWERVIEW_SPEECH_ENDPOINT")
			}
			if endpoint == "" {
				return fmt.Errorf("no synthesis endpoint: pass --endpoint or set ANSWERVIEW_SPEECH_ENDPOINT")
			}

			out := speech.NewFileOutput(outDir, "answer", log)
			p := speech.NewPipeline("cli",
				speech.NewHTTPClient(speech.ClientConfig{Endpoint: endpoint}, log),
				speech.WAVDecoder{}, out,
				speech.Options{RequestTimeout: timeout}, log)

			req, err := p.Trigger(cmd.Context(), text)
			if err != nil {
				return err
			}
			select {
			case <-req.Done():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
			if err := req.Err(); err != nil {
				return err
			}
			for _, path := range out.Written() {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "synthesis endpoint URL")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for WAV files")
	cmd.Flags().StringVar(&payload, "payload", "text", "what to send: text or parsed")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "synthesis timeout")
	return cmd
}
