package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/capability"
	"github.com/talkcoach/voicekit/voice/recognition"
	"github.com/talkcoach/voicekit/voice/synthesis"
)

var capabilityCmd = &cobra.Command{
	Use:   "capability",
	Short: "Probe engines and report what voice features are available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.close()

		snapshot := s.assessor.Assess(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), capability.Report(snapshot))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current voice mode and any degradation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.close()

		state := s.coordinator.Initialize(cmd.Context())
		status := voice.StatusFor(state.Mode)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mode:     %s\n", state.Mode)
		fmt.Fprintf(out, "severity: %s\n", status.Severity)
		fmt.Fprintf(out, "message:  %s\n", status.Message)
		if state.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", state.LastError)
		}
		if state.RetryCount > 0 {
			fmt.Fprintf(out, "retries:  %d\n", state.RetryCount)
		}
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Transcribe speech continuously until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.close()

		state := s.coordinator.Initialize(cmd.Context())
		if state.Mode != voice.ModeNone {
			status := voice.StatusFor(state.Mode)
			return fmt.Errorf("voice input unavailable: %s", status.Message)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		session := recognition.NewSession(cfg.Recognition, s.recognition, recognition.Handlers{
			OnStart: func() {
				log.Info("listening, press ctrl-c to stop")
			},
			OnResult: func(r voice.RecognitionResult) {
				fmt.Fprintf(out, "%s  (%.2f)\n", r.Transcript, r.Confidence)
			},
			OnInterim: func(r voice.RecognitionResult) {
				log.Debug("interim", "transcript", r.Transcript, "confidence", r.Confidence)
			},
			OnError: func(verr *voice.Error) {
				log.Warn("recognition error", "error", verr)
				s.coordinator.ReportFailure(ctx, verr)
			},
		})

		if !session.Start(ctx) {
			return fmt.Errorf("could not start recognition session")
		}

		<-ctx.Done()
		session.Stop()
		return nil
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak [TEXT...]",
	Short: "Synthesize text to speech",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.close()

		state := s.coordinator.Initialize(cmd.Context())
		if state.Mode != voice.ModeNone && state.Mode != voice.ModePartial {
			status := voice.StatusFor(state.Mode)
			return fmt.Errorf("voice output unavailable: %s", status.Message)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		done := make(chan error, 1)
		queue := synthesis.NewQueue(cfg.Synthesis, s.synthesis, synthesis.Handlers{
			OnUtteranceEnd: func(voice.Utterance) {
				done <- nil
			},
			OnError: func(verr *voice.Error) {
				done <- verr
			},
		})
		defer queue.Close()

		if _, err := queue.Enqueue(voice.Utterance{Text: strings.Join(args, " ")}); err != nil {
			return err
		}

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			queue.Stop()
			return nil
		}
	},
}
