package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/internal/application/query"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC & STATUS
// ══════════════════════════════════════════════════════════════════════════════

func syncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local snapshot with the remote store once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, appOptions{remote: true}, func(ctx context.Context, a *app) error {
				result, err := syncOnce(ctx, a)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

// statusView is what the status command prints.
type statusView struct {
	Overview *query.ProgressOverviewDTO `json:"overview"`
	Habit    *query.HabitSummaryDTO     `json:"habit"`
	Notes    int                        `json:"notes"`
}

func statusCmd(flags *rootFlags) *cobra.Command {
	var today string
	var lessons bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show progress, streak and the suggested next step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				overview, err := a.overview.Handle(ctx, query.GetProgressOverviewQuery{Today: today, IncludeLessonIDs: lessons})
				if err != nil {
					return err
				}
				habit, err := a.summary.Handle(ctx, query.GetHabitSummaryQuery{Today: today})
				if err != nil {
					return err
				}
				return printJSON(cmd, statusView{Overview: overview, Habit: habit, Notes: len(a.book.All())})
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "Evaluate as of this UTC date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&lessons, "lessons", false, "Include completed lesson ids")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

func recordCmd(flags *rootFlags) *cobra.Command {
	var (
		score    int
		total    int
		timeSec  int
		attempts string
	)

	cmd := &cobra.Command{
		Use:   "record <kind> <id>",
		Short: "Record a study event",
		Long: `Records one study event in the local snapshot. Kinds:
  lesson_opened, lesson_completed, quiz_completed, exercise_completed,
  quiz_attempted (requires --score and --total)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command.RecordStudyEventCommand{
				Kind:     command.StudyEventKind(args[0]),
				TargetID: args[1],
			}
			if c.Kind == command.StudyQuizAttempted {
				attempt := progress.QuizAttempt{
					QuizID:         args[1],
					AttemptedAt:    time.Now().UTC(),
					Score:          score,
					TotalQuestions: total,
					PerQuestion:    parsePerQuestion(attempts),
				}
				if cmd.Flags().Changed("time") {
					attempt.TimeTakenSec = &timeSec
				}
				c.Attempt = &attempt
			}

			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				result, err := a.record.Handle(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().IntVar(&score, "score", 0, "Correct answers (quiz_attempted)")
	cmd.Flags().IntVar(&total, "total", 0, "Question count (quiz_attempted)")
	cmd.Flags().IntVar(&timeSec, "time", 0, "Seconds taken (quiz_attempted)")
	cmd.Flags().StringVar(&attempts, "answers", "", "Per question results, e.g. q1=ok,q2=fail")
	return cmd
}

func parsePerQuestion(s string) []progress.QuestionResult {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []progress.QuestionResult
	for _, part := range strings.Split(s, ",") {
		id, verdict, _ := strings.Cut(strings.TrimSpace(part), "=")
		if id == "" {
			continue
		}
		out = append(out, progress.QuestionResult{QuestionID: id, Correct: verdict == "ok"})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTES
// ══════════════════════════════════════════════════════════════════════════════

func noteCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage per-lesson notes",
	}

	set := &cobra.Command{
		Use:   "set <lesson-id> [markdown]",
		Short: "Save a note; reads stdin when markdown is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown := ""
			if len(args) == 2 {
				markdown = args[1]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read note: %w", err)
				}
				markdown = string(data)
			}
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				n, err := a.notes.Save(ctx, command.SaveNoteCommand{LessonID: args[0], Markdown: markdown})
				if err != nil {
					return err
				}
				return printJSON(cmd, n)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <lesson-id>",
		Short: "Delete the note of a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				return a.notes.Delete(ctx, command.DeleteNoteCommand{LessonID: args[0]})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, appOptions{}, func(_ context.Context, a *app) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "LESSON\tUPDATED\tBYTES")
				for _, n := range a.book.All().Sorted() {
					fmt.Fprintf(w, "%s\t%s\t%d\n", n.LessonID, n.UpdatedAt.Format(time.RFC3339), len(n.Markdown))
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(set, del, list)
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func quizCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Inspect resumable quiz sessions",
	}

	show := &cobra.Command{
		Use:   "show <quiz-id>",
		Short: "Print the saved session of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				session, ok, err := a.quizzes.Load(ctx, a.cfg.App.UserID, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no saved session for quiz %q", args[0])
				}
				return printJSON(cmd, session)
			})
		},
	}

	clearSession := &cobra.Command{
		Use:   "clear <quiz-id>",
		Short: "Discard the saved session of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				return a.quizzes.Delete(ctx, a.cfg.App.UserID, args[0])
			})
		},
	}

	cmd.AddCommand(show, clearSession)
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET
// ══════════════════════════════════════════════════════════════════════════════

func resetCmd(flags *rootFlags) *cobra.Command {
	var withNotes, yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the local progress snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			return withApp(cmd.Context(), flags, appOptions{}, func(ctx context.Context, a *app) error {
				if err := a.reset.Handle(ctx, command.ResetProgressCommand{IncludeNotes: withNotes}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "local progress reset; the next sync restores remote data")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withNotes, "notes", false, "Also delete every note")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func migrateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the remote store schema",
	}

	run := func(fn func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, appOptions{remote: true}, func(ctx context.Context, a *app) error {
				return fn(ctx, postgres.NewMigrator(a.db), a.log)
			})
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error {
			applied, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", logger.Int("count", len(applied)))
			return nil
		}),
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, _ *logger.Logger) error {
			return m.Rollback(ctx)
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, _ *logger.Logger) error {
			migrations, err := m.Status(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, mg := range migrations {
				applied := "-"
				if mg.IsApplied {
					applied = mg.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", mg.Version, mg.Name, applied)
			}
			return w.Flush()
		}),
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
