package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
	"github.com/garyjia/sygfp/pkg/utils"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			return newPrinter(rootOpts, cmd.OutOrStdout()).print(
				map[string]string{"database": e.ccfg.Database.Path, "status": "up to date"},
				func(w io.Writer) { fmt.Fprintf(w, "%s: schema up to date\n", e.ccfg.Database.Path) },
			)
		},
	}
}

// UserAddOptions holds flags for user add.
type UserAddOptions struct {
	*RootOptions
	ID         string
	Email      string
	FullName   string
	Direction  string
	LarkOpenID string
	Roles      []string
}

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their roles",
	}

	opts := &UserAddOptions{RootOptions: rootOpts}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Long: `Create a user with its roles.

Examples:
  sygfpctl user add --email dg@arti.ci --name "Directeur Général" --role DG
  sygfpctl user add --email saf@arti.ci --name "Agent SAF" --direction DAAF --role SAF --role AGENT`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(contextOf(cmd), opts, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "user id (default: generated)")
	add.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	add.Flags().StringVar(&opts.FullName, "name", "", "full name (required)")
	add.Flags().StringVar(&opts.Direction, "direction", "", "direction code, used in dossier numbers")
	add.Flags().StringVar(&opts.LarkOpenID, "lark-open-id", "", "Lark open_id for push notifications")
	add.Flags().StringSliceVar(&opts.Roles, "role", nil, "role code, repeatable")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("name")

	var grantUser, grantRole string
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(grantRole)
			if err != nil {
				return err
			}
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := contextOf(cmd)
			if err := requireUser(ctx, e, grantUser); err != nil {
				return err
			}
			if err := e.repos.User.GrantRole(ctx, grantUser, role); err != nil {
				return WrapExitError(ExitCommandError, "failed to grant role", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(
				map[string]string{"user_id": grantUser, "role": string(role)},
				func(w io.Writer) { fmt.Fprintf(w, "%s\t+%s\n", grantUser, role) },
			)
		},
	}
	grant.Flags().StringVar(&grantUser, "user", "", "user id (required)")
	grant.Flags().StringVar(&grantRole, "role", "", "role code (required)")
	_ = grant.MarkFlagRequired("user")
	_ = grant.MarkFlagRequired("role")

	cmd.AddCommand(add, grant)
	return cmd
}

func runUserAdd(ctx context.Context, opts *UserAddOptions, out io.Writer) error {
	email := strings.TrimSpace(opts.Email)
	if err := utils.ValidateEmail(email); err != nil {
		return WrapExitError(ExitCommandError, "invalid --email", err)
	}
	roles := make([]workflow.Role, 0, len(opts.Roles))
	for _, raw := range opts.Roles {
		role, err := parseRole(raw)
		if err != nil {
			return err
		}
		roles = append(roles, role)
	}

	u := &entity.User{
		ID:         opts.ID,
		Email:      email,
		FullName:   utils.SanitizeString(opts.FullName),
		Direction:  strings.ToUpper(strings.TrimSpace(opts.Direction)),
		LarkOpenID: opts.LarkOpenID,
		Active:     true,
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	e, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.repos.User.Create(ctx, u, roles...); err != nil {
		return WrapExitError(ExitFailure, "failed to create user", err)
	}

	return newPrinter(opts.RootOptions, out).print(
		map[string]interface{}{"user": u, "roles": roles},
		func(w io.Writer) {
			fmt.Fprintf(w, "ID\tEMAIL\tNAME\tROLES\n")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.FullName, joinRoles(roles))
		},
	)
}

// DelegationAddOptions holds flags for delegation add.
type DelegationAddOptions struct {
	*RootOptions
	Grantor  string
	Delegate string
	Role     string
	DocType  string
	From     string
	To       string
	Interim  bool
	Motif    string
}

// NewDelegationCommand creates the delegation command group.
func NewDelegationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delegation",
		Short: "Manage delegations and interims",
	}

	opts := &DelegationAddOptions{RootOptions: rootOpts}
	add := &cobra.Command{
		Use:   "add",
		Short: "Grant a delegation or an interim",
		Long: `Grant the delegate the validation authority of the grantor for a role.

Dates are YYYY-MM-DD; the period covers both days.

Examples:
  sygfpctl delegation add --grantor u-dg --delegate u-daaf --role DG --from 2025-07-01 --to 2025-07-31 --interim
  sygfpctl delegation add --grantor u-cb --delegate u-cb2 --role CB --doc-type engagement --from 2025-03-01 --to 2025-03-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelegationAdd(contextOf(cmd), opts, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&opts.Grantor, "grantor", "", "user granting authority (required)")
	add.Flags().StringVar(&opts.Delegate, "delegate", "", "user receiving authority (required)")
	add.Flags().StringVar(&opts.Role, "role", "", "delegated role (required)")
	add.Flags().StringVar(&opts.DocType, "doc-type", "", "restrict to one document type")
	add.Flags().StringVar(&opts.From, "from", "", "first day, YYYY-MM-DD (required)")
	add.Flags().StringVar(&opts.To, "to", "", "last day, YYYY-MM-DD (required)")
	add.Flags().BoolVar(&opts.Interim, "interim", false, "record an interim instead of a delegation")
	add.Flags().StringVar(&opts.Motif, "motif", "", "reason")
	for _, f := range []string{"grantor", "delegate", "role", "from", "to"} {
		_ = add.MarkFlagRequired(f)
	}

	var revokeID int64
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate a delegation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.repos.Delegation.Revoke(contextOf(cmd), revokeID); err != nil {
				return WrapExitError(ExitFailure, "failed to revoke delegation", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).print(
				map[string]int64{"revoked": revokeID},
				func(w io.Writer) { fmt.Fprintf(w, "delegation %d revoked\n", revokeID) },
			)
		},
	}
	revoke.Flags().Int64Var(&revokeID, "id", 0, "delegation id (required)")
	_ = revoke.MarkFlagRequired("id")

	cmd.AddCommand(add, revoke)
	return cmd
}

func runDelegationAdd(ctx context.Context, opts *DelegationAddOptions, out io.Writer) error {
	role, err := parseRole(opts.Role)
	if err != nil {
		return err
	}
	var docType workflow.DocType
	if opts.DocType != "" {
		dt, ok := workflow.ParseDocType(opts.DocType)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown --doc-type %q", opts.DocType))
		}
		docType = dt
	}
	if opts.Grantor == opts.Delegate {
		return NewExitError(ExitCommandError, "--grantor and --delegate must differ")
	}

	from, err := time.ParseInLocation("2006-01-02", opts.From, time.Local)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --from", err)
	}
	to, err := time.ParseInLocation("2006-01-02", opts.To, time.Local)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --to", err)
	}
	endsAt := to.AddDate(0, 0, 1).Add(-time.Second)
	if endsAt.Before(from) {
		return NewExitError(ExitCommandError, "--to is before --from")
	}

	kind := entity.DelegationKindDelegation
	if opts.Interim {
		kind = entity.DelegationKindInterim
	}
	d := &entity.Delegation{
		GrantorID:  opts.Grantor,
		DelegateID: opts.Delegate,
		Kind:       kind,
		Role:       role,
		DocType:    docType,
		StartsAt:   from,
		EndsAt:     endsAt,
		Active:     true,
		Motif:      utils.SanitizeString(opts.Motif),
	}

	e, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	for _, id := range []string{d.GrantorID, d.DelegateID} {
		if err := requireUser(ctx, e, id); err != nil {
			return err
		}
	}
	if err := e.repos.Delegation.Create(ctx, d); err != nil {
		return WrapExitError(ExitFailure, "failed to create delegation", err)
	}

	return newPrinter(opts.RootOptions, out).print(d, func(w io.Writer) {
		fmt.Fprintf(w, "ID\tKIND\tGRANTOR\tDELEGATE\tROLE\tFROM\tTO\n")
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Kind, d.GrantorID, d.DelegateID, d.Role, opts.From, opts.To)
	})
}

// BudgetAddOptions holds flags for budget add.
type BudgetAddOptions struct {
	*RootOptions
	Code     string
	Libelle  string
	Exercice int
	Dotation string
}

// NewBudgetCommand creates the budget command group.
func NewBudgetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budget lines",
	}

	opts := &BudgetAddOptions{RootOptions: rootOpts}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a budget line",
		Long: `Create a budget line for an exercice. Imputations reserve its dotation and engagements engage it.

Example:
  sygfpctl budget add --code 6221 --libelle "Frais de mission" --exercice 2025 --dotation 150000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudgetAdd(contextOf(cmd), opts, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&opts.Code, "code", "", "budget line code (required)")
	add.Flags().StringVar(&opts.Libelle, "libelle", "", "label")
	add.Flags().IntVar(&opts.Exercice, "exercice", time.Now().Year(), "fiscal year")
	add.Flags().StringVar(&opts.Dotation, "dotation", "", "allocated amount in FCFA (required)")
	_ = add.MarkFlagRequired("code")
	_ = add.MarkFlagRequired("dotation")

	cmd.AddCommand(add)
	return cmd
}

func runBudgetAdd(ctx context.Context, opts *BudgetAddOptions, out io.Writer) error {
	if err := utils.ValidateExercice(opts.Exercice); err != nil {
		return WrapExitError(ExitCommandError, "invalid --exercice", err)
	}
	dotation, err := utils.ValidateMontant(opts.Dotation)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --dotation", err)
	}

	line := &entity.BudgetLine{
		ID:       uuid.New().String(),
		Code:     strings.TrimSpace(opts.Code),
		Libelle:  utils.SanitizeString(opts.Libelle),
		Exercice: opts.Exercice,
		Dotation: dotation,
	}

	e, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.repos.Budget.Create(ctx, line); err != nil {
		return WrapExitError(ExitFailure, "failed to create budget line", err)
	}

	return newPrinter(opts.RootOptions, out).print(line, func(w io.Writer) {
		fmt.Fprintf(w, "ID\tCODE\tEXERCICE\tDOTATION\n")
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", line.ID, line.Code, line.Exercice, line.Dotation.StringFixed(0))
	})
}

func parseRole(raw string) (workflow.Role, error) {
	role := workflow.Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.IsValid() {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", raw))
	}
	return role, nil
}

func requireUser(ctx context.Context, e *env, id string) error {
	u, err := e.repos.User.GetUser(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read user", err)
	}
	if u == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("unknown user %s", id))
	}
	return nil
}

func joinRoles(roles []workflow.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// contextOf returns the command context, which is nil when the command is
// executed without ExecuteContext.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
