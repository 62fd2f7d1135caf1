package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/pagecraft/pagecraft/internal/cli/ui"
	"github.com/pagecraft/pagecraft/internal/migrate"
	"github.com/pagecraft/pagecraft/internal/model"
)

// ErrPublishCancelled is returned when a destructive publish is not confirmed
var ErrPublishCancelled = errors.New("publish cancelled")

// confirm asks a yes/no question; replaced in tests
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// readDraft reads a data model from a JSON file, "-" meaning stdin
func readDraft(path string, stdin io.Reader) (*model.DataModel, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var m model.DataModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	return &m, nil
}

func newModelsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List data models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			backend, err := openModelBackend(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer backend.Close()

			models, err := backend.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				env.printer.Warn("No data models yet")
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m.ID, m.Name, m.TableName, strconv.Itoa(len(m.Fields))})
			}
			env.printer.Table([]string{"ID", "NAME", "TABLE", "FIELDS"}, rows)
			return nil
		},
	}
}

func newDiffCommand(flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "diff <model-id>",
		Short: "Show the DDL a publish would run",
		Long: `Compute the statements that bring the model's table in line with a draft.

Without --file the stored model is compared against the live table, which
shows a full CREATE when the table is missing.`,
		Example: `  # Preview a draft edited locally
  pagecraft diff 8c0f... --file contacts.json

  # Check that the table of a stored model exists
  pagecraft diff 8c0f...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			backend, err := openModelBackend(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer backend.Close()

			var draft *model.DataModel
			if file != "" {
				if draft, err = readDraft(file, cmd.InOrStdin()); err != nil {
					return err
				}
			} else {
				m, found, err := backend.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s", migrate.ErrModelNotFound, args[0])
				}
				draft = m
			}
			draft.ID = args[0]

			plan, err := backend.Plan(cmd.Context(), draft)
			if err != nil {
				return reportValidation(env.printer, err)
			}
			env.printer.Header(fmt.Sprintf("Plan for table %s", plan.Table))
			env.printer.Plan(plan.Statements())
			if plan.Destructive {
				env.printer.Warn(migrate.MessageDestructive)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Draft model JSON file (- for stdin)")
	return cmd
}

func newPublishCommand(flags *globalFlags) *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "publish <model-file>",
		Short: "Apply a draft model to the database",
		Long: `Publish a draft data model: the DDL runs in one transaction and the model
metadata is saved only after it committed.

Plans that drop columns ask for confirmation unless --yes is given.`,
		Example: `  # Publish after reviewing the plan
  pagecraft publish contacts.json

  # Non-interactive, accepting destructive changes
  pagecraft publish contacts.json --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			draft, err := readDraft(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if draft.ID == "" {
				return fmt.Errorf("%w: the model file has no id", migrate.ErrInvalidModel)
			}

			backend, err := openModelBackend(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer backend.Close()

			preview, err := backend.Publish(cmd.Context(), migrate.PublishRequest{Model: draft, DryRun: true})
			if err != nil {
				return reportValidation(env.printer, err)
			}
			env.printer.Header(fmt.Sprintf("Publishing %s (%s)", draft.Name, draft.TableName))
			env.printer.Plan(preview.Ops)
			if dryRun {
				return nil
			}

			if preview.Destructive && !yes {
				env.printer.Warn(preview.Message)
				ok, err := confirm("Apply destructive changes? Dropped columns lose their data.")
				if err != nil {
					return err
				}
				if !ok {
					return ErrPublishCancelled
				}
			}

			result, err := backend.Publish(cmd.Context(), migrate.PublishRequest{
				Model:              draft,
				ConfirmDestructive: true,
			})
			if err != nil {
				detail := migrate.DatabaseMessage(err)
				env.printer.Problem(ui.Problem{
					Title:  "publish failed",
					Detail: detail,
					Hints:  []string{fmt.Sprintf("Preview the plan: pagecraft diff %s --file %s", draft.ID, args[0])},
				})
				return err
			}

			if len(result.Ops) == 0 {
				env.printer.Success("No schema changes; model metadata saved")
				return nil
			}
			env.printer.Success("Published %s: %d statement(s) applied", draft.TableName, len(result.Ops))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply destructive changes without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only show the plan")
	return cmd
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <model-id>",
		Short: "List the migrations applied for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			backend, err := openModelBackend(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer backend.Close()

			migrations, err := backend.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(migrations) == 0 {
				env.printer.Warn("No migrations recorded for %s", args[0])
				return nil
			}
			rows := make([][]string, 0, len(migrations))
			for _, m := range migrations {
				destructive := ""
				if m.Destructive {
					destructive = "yes"
				}
				rows = append(rows, []string{
					m.AppliedAt.Format("2006-01-02 15:04:05"),
					m.Name,
					m.Table,
					destructive,
				})
			}
			env.printer.Table([]string{"APPLIED", "NAME", "TABLE", "DESTRUCTIVE"}, rows)
			return nil
		},
	}
}

// reportValidation prints field errors of an invalid model before returning err
func reportValidation(p *ui.Printer, err error) error {
	var verr *model.ValidationErrors
	if !errors.As(err, &verr) {
		return err
	}
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := [][2]string{}
	for _, field := range keys {
		for _, msg := range verr.Fields[field] {
			rows = append(rows, [2]string{field, msg})
		}
	}
	p.Problem(ui.Problem{Title: "invalid model"})
	p.KeyValues(rows)
	return err
}
