package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusBrouillon, false},
		{StatusSoumis, false},
		{StatusValide, false},
		{StatusRejete, false},
		{StatusPaye, false},
		{StatusCloture, true},
		{StatusAnnule, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"valid status", StatusBrouillon, true},
		{"valid procurement status", StatusEnEvaluation, true},
		{"invalid status", Status("INVALID"), false},
		{"empty status", Status(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.expected {
				t.Errorf("Status.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAction_Metadata(t *testing.T) {
	if got := ActionSubmit.String(); got != "SUBMIT" {
		t.Errorf("Action.String() = %v, want %v", got, "SUBMIT")
	}
	if got := ActionDefer.HistoryAction(); got != HistoryReport {
		t.Errorf("ActionDefer.HistoryAction() = %v, want %v", got, HistoryReport)
	}
	if got := ActionResubmit.HistoryAction(); got != HistoryResoumission {
		t.Errorf("ActionResubmit.HistoryAction() = %v, want %v", got, HistoryResoumission)
	}
	if Action("FLY").IsValid() {
		t.Error("unknown action should be invalid")
	}
}

func TestParseDocType(t *testing.T) {
	tests := []struct {
		in   string
		want DocType
		ok   bool
	}{
		{"note_sef", DocNoteSEF, true},
		{"NOTE_SEF", DocNoteSEF, true},
		{"PASSATION_MARCHE", DocMarche, true},
		{"reglement", DocReglement, true},
		{"facture", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDocType(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseDocType(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	NewBuilder(DocNoteSEF).Configure(Status("INVALID"))
}

func TestStateConfiguration_PermitPanicsOnInvalidTarget(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid target state")
		}
	}()

	NewBuilder(DocNoteSEF).Configure(StatusBrouillon).Permit(ActionSubmit, Status("INVALID"))
}

func TestStateConfiguration_PermitPanicsOnInvalidAction(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid action")
		}
	}()

	NewBuilder(DocNoteSEF).Configure(StatusBrouillon).Permit(Action("FLY"), StatusSoumis)
}

func TestStateMachine_Fire(t *testing.T) {
	b := NewBuilder(DocNoteSEF)
	b.Configure(StatusBrouillon).Permit(ActionSubmit, StatusSoumis)
	b.Configure(StatusSoumis).Permit(ActionValidate, StatusValide)
	def := b.Build()

	sm := def.Machine(StatusBrouillon)
	if !sm.CanFire(ActionSubmit) {
		t.Fatal("CanFire(SUBMIT) should be true from brouillon")
	}
	if sm.CanFire(ActionValidate) {
		t.Error("CanFire(VALIDATE) should be false from brouillon")
	}

	tr, err := sm.Fire(context.Background(), ActionSubmit)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if tr.To != StatusSoumis || sm.State() != StatusSoumis {
		t.Errorf("State() = %v, want %v", sm.State(), StatusSoumis)
	}

	if _, err := sm.Fire(context.Background(), ActionSubmit); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if sm.State() != StatusSoumis {
		t.Errorf("State() changed after failed Fire: %v", sm.State())
	}
}

func TestStateMachine_Fire_GuardFails(t *testing.T) {
	b := NewBuilder(DocLiquidation)
	b.Configure(StatusSoumis).
		Permit(ActionValidate, StatusValide, When(func(tc TransitionContext) error {
			return errors.New("blocked")
		}))
	def := b.Build()

	sm := def.Machine(StatusSoumis)
	if _, err := sm.Fire(context.Background(), ActionValidate); !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want ErrGuardFailed", err)
	}
	if sm.State() != StatusSoumis {
		t.Errorf("State() = %v, want %v", sm.State(), StatusSoumis)
	}
}

func TestStateMachine_Fire_ReadsContext(t *testing.T) {
	def := mustDefinition(t, DocLiquidation)

	ctx := WithTransitionContext(context.Background(), TransitionContext{Montant: decimal.NewFromInt(60_000_000)})
	sm := def.Machine(StatusSoumis)

	if _, err := sm.Fire(ctx, ActionValidate); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("VALIDATE above threshold error = %v, want ErrGuardFailed", err)
	}
	if _, err := sm.Fire(ctx, ActionForwardDG); err != nil {
		t.Fatalf("FORWARD_DG error = %v", err)
	}
	if sm.State() != StatusEnValidationDG {
		t.Errorf("State() = %v, want %v", sm.State(), StatusEnValidationDG)
	}
}

func TestStateMachine_PermittedActions(t *testing.T) {
	def := mustDefinition(t, DocNoteSEF)

	got := def.Machine(StatusSoumis).PermittedActions()
	want := map[Action]bool{ActionValidate: true, ActionReject: true, ActionDefer: true}
	if len(got) != len(want) {
		t.Fatalf("PermittedActions() = %v, want %d actions", got, len(want))
	}
	for _, a := range got {
		if !want[a] {
			t.Errorf("unexpected action %v", a)
		}
	}

	if got := def.Machine(StatusValide).PermittedActions(); len(got) != 0 {
		t.Errorf("PermittedActions() from valide = %v, want none", got)
	}
}

func TestDefinition_Immutability(t *testing.T) {
	b := NewBuilder(DocNoteSEF)
	b.Configure(StatusBrouillon).Permit(ActionSubmit, StatusSoumis)
	def := b.Build()

	b.Configure(StatusBrouillon).Permit(ActionCancel, StatusAnnule)

	if got := def.Lookup(StatusBrouillon, ActionCancel); len(got) != 0 {
		t.Error("Definition should not see transitions added after Build()")
	}
}

// mustDefinition returns the built-in definition of a document type
func mustDefinition(t *testing.T, d DocType) *Definition {
	t.Helper()
	def, err := NewRegistry(DefaultThresholds()).Definition(d)
	if err != nil {
		t.Fatalf("Definition(%s) error = %v", d, err)
	}
	return def
}
