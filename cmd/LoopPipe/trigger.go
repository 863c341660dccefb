package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/pipeline"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/spf13/cobra"
)

type triggerFlags struct {
	userID    string
	trigger   string
	persona   string
	sessionID string
	tc        models.TriggerContext
	questions int
	correct   int
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	var tf triggerFlags
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run one trigger through the pipeline and print the results as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := tf.request()

			dsn := opts.cfg.StoreDSN()
			if err := ensureDirectoriesExist(dsn); err != nil {
				return err
			}
			st, _, err := store.Open(dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := buildApp(opts.cfg, st, opts.logger)
			if err != nil {
				return err
			}
			results := a.pipeline.ProcessTrigger(cmd.Context(), req)
			slog.Debug("trigger: pipeline finished", "results", len(results))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return fmt.Errorf("failed to encode results: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&tf.userID, "user", "", "user id (required)")
	f.StringVar(&tf.trigger, "trigger", "", "trigger, e.g. SESSION_COMPLETE (required)")
	f.StringVar(&tf.persona, "persona", "", "STUDENT, PARENT or TUTOR (required)")
	f.StringVar(&tf.sessionID, "session", "", "session id; attaches a session summary")
	f.IntVar(&tf.questions, "questions", 0, "questions answered in the session")
	f.IntVar(&tf.correct, "correct", 0, "correct answers in the session")
	f.StringVar(&tf.tc.Name, "name", "", "learner name")
	f.StringVar(&tf.tc.Subject, "subject", "", "subject")
	f.Float64Var(&tf.tc.Score, "score", 0, "score")
	f.IntVar(&tf.tc.StreakDays, "streak", 0, "streak length in days")
	f.StringVar(&tf.tc.BadgeName, "badge", "", "badge name")
	f.StringVar(&tf.tc.Email, "email", "", "user email")
	f.StringVar(&tf.tc.DeviceID, "device", "", "device id")
	f.StringVar(&tf.tc.InviteePhone, "phone", "", "invitee phone number")
	for _, name := range []string{"user", "trigger", "persona"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (tf triggerFlags) request() pipeline.TriggerRequest {
	req := pipeline.TriggerRequest{
		UserID:    tf.userID,
		Trigger:   models.UserTrigger(tf.trigger),
		Persona:   models.Persona(tf.persona),
		Context:   tf.tc,
		SessionID: tf.sessionID,
	}
	if tf.sessionID != "" {
		req.Summary = &models.SessionSummary{
			SessionID:         tf.sessionID,
			Subject:           tf.tc.Subject,
			QuestionsAnswered: tf.questions,
			CorrectAnswers:    tf.correct,
			StreakDays:        tf.tc.StreakDays,
		}
		if tf.tc.BadgeName != "" {
			req.Summary.BadgesEarned = []string{tf.tc.BadgeName}
		}
	}
	return req
}
