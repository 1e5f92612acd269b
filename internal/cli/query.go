package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/sygfp/internal/application/sequence"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/container"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
	httpapi "github.com/garyjia/sygfp/internal/interfaces/http"
	"github.com/garyjia/sygfp/pkg/utils"
)

// SequenceOptions holds flags for sequence next.
type SequenceOptions struct {
	*RootOptions
	DocType   string
	Dossier   bool
	Direction string
	Exercice  int
}

// NewSequenceCommand creates the sequence command group.
func NewSequenceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Reference numbers",
	}

	opts := &SequenceOptions{RootOptions: rootOpts}
	next := &cobra.Command{
		Use:   "next",
		Short: "Allocate the next reference number",
		Long: `Allocate and print the next reference for a document type or a dossier.

The number is consumed: use it to number a paper document or to realign a
counter after an import.

Examples:
  sygfpctl sequence next --doc-type engagement --exercice 2025
  sygfpctl sequence next --dossier --direction DAAF`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateExercice(opts.Exercice); err != nil {
				return WrapExitError(ExitCommandError, "invalid --exercice", err)
			}
			if opts.Dossier == (opts.DocType != "") {
				return NewExitError(ExitCommandError, "exactly one of --doc-type or --dossier is required")
			}
			var docType workflow.DocType
			if opts.DocType != "" {
				dt, ok := workflow.ParseDocType(opts.DocType)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown --doc-type %q", opts.DocType))
				}
				docType = dt
			}

			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := contextOf(cmd)
			seq, err := e.sequence(ctx)
			if err != nil {
				return err
			}
			gen := sequence.NewGenerator(seq.Allocator)

			var ref sequence.Reference
			if opts.Dossier {
				ref, err = gen.ForDossier(ctx, opts.Exercice, strings.ToUpper(opts.Direction))
			} else {
				ref, err = gen.ForDocument(ctx, docType, opts.Exercice)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to allocate reference", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(ref, func(w io.Writer) {
				fmt.Fprintln(w, ref.FullCode)
			})
		},
	}
	next.Flags().StringVar(&opts.DocType, "doc-type", "", "document type")
	next.Flags().BoolVar(&opts.Dossier, "dossier", false, "allocate a dossier number")
	next.Flags().StringVar(&opts.Direction, "direction", "", "direction code for dossier numbers")
	next.Flags().IntVar(&opts.Exercice, "exercice", time.Now().Year(), "fiscal year")

	cmd.AddCommand(next)
	return cmd
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for a user",
		Long: `Issue a signed bearer token for an existing user. Roles are not part of
the token: they are resolved on every request.

Example:
  sygfpctl token --user u-dg --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := requireUser(contextOf(cmd), e, userID); err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = e.cfg.Auth.TokenTTL
			}
			token, err := httpapi.NewTokenIssuer(e.cfg.Auth.JWTSecret, e.cfg.Auth.Issuer, ttl).Issue(userID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to sign token", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(
				map[string]string{"user_id": userID, "token": token},
				func(w io.Writer) { fmt.Fprintln(w, token) },
			)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "timeline <dossier-id-or-numero>",
		Short: "Show the spending chain of a dossier",
		Long: `Show the eight stages of a dossier with their status and progress.

With --as, the next action recommended to that user is included.

Example:
  sygfpctl timeline ARTI/2025/DAAF/0001 --as u-cb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := contextOf(cmd)
			wf, err := e.workflowBundle(ctx)
			if err != nil {
				return err
			}
			sc, err := wf.Services.Spending.Timeline(ctx, args[0], actorID)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build timeline", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(sc, func(w io.Writer) {
				printTimeline(w, sc)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "as", "", "user the next action is computed for")
	return cmd
}

func printTimeline(w io.Writer, sc *entity.SpendingCase) {
	fmt.Fprintf(w, "%s\t%s\t%d%% (%d/%d)\n", sc.Numero, sc.StatutGlobal, sc.Progress, sc.Completed, len(sc.Stages))
	fmt.Fprintf(w, "STAGE\tSTATUS\tREFERENCE\n")
	for _, st := range sc.Stages {
		ref := ""
		if st.Data != nil {
			ref = st.Data.Reference
		}
		marker := ""
		if st.Stage == sc.CurrentStage {
			marker = " <"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\n", st.Label, st.Status, ref, marker)
	}
	if sc.NextAction != nil {
		fmt.Fprintf(w, "next:\t%s\t%s\n", sc.NextAction.Label, sc.NextAction.DocumentID)
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Show the audit trail of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			audit := service.NewAuditService(e.repos.History, container.NewLoggerAdapter(e.logger))
			entries, err := audit.History(contextOf(cmd), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read history", err)
			}
			if entries == nil {
				entries = []*entity.HistoryEntry{}
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(entries, func(w io.Writer) {
				fmt.Fprintf(w, "WHEN\tACTION\tFROM\tTO\tBY\tCOMMENT\n")
				for _, h := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						h.PerformedAt.Local().Format("2006-01-02 15:04"),
						h.Action, h.OldStatut, h.NewStatut, h.PerformedBy, h.Commentaire)
				}
			})
		},
	}
}
