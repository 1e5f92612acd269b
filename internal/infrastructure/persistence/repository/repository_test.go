package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
	"github.com/garyjia/sygfp/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/sygfp/pkg/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "sygfp.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, logger).Run()
	require.NoError(t, err)
	return db.DB
}

func seedUser(t *testing.T, users *UserRepository, id string, roles ...workflow.Role) {
	t.Helper()
	require.NoError(t, users.Create(context.Background(),
		&entity.User{ID: id, Email: id + "@arti.ci", FullName: id, Active: true}, roles...))
}

func newDraft(id string) *entity.Document {
	return &entity.Document{
		ID:                    id,
		DocType:               workflow.DocNoteSEF,
		Exercice:              2025,
		Statut:                workflow.StatusBrouillon,
		CreatedBy:             "agent",
		Objet:                 "Achat de fournitures",
		Montant:               decimal.RequireFromString("1250000.50"),
		ListeArticles:         []entity.Article{{Designation: "Rames", Quantite: decimal.NewFromInt(10), PrixUnitaire: decimal.NewFromInt(3500)}},
		CurrentValidationStep: 1,
	}
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()

	doc := newDraft("d1")
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Achat de fournitures", got.Objet)
	assert.True(t, doc.Montant.Equal(got.Montant))
	require.Len(t, got.ListeArticles, 1)
	assert.Equal(t, "Rames", got.ListeArticles[0].Designation)
	assert.Empty(t, got.Reference)

	missing, err := repo.GetByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	// two drafts without reference do not collide on the unique index
	require.NoError(t, repo.Create(ctx, newDraft("d2")))

	list, err := repo.List(ctx, port.DocumentFilter{DocType: workflow.DocNoteSEF, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got.Objet = "Achat de cartouches"
	require.NoError(t, repo.UpdateDraft(ctx, got))
	again, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Achat de cartouches", again.Objet)
}

func TestDocumentRepository_ApplyTransition(t *testing.T) {
	db := newTestDB(t)
	logger := zap.NewNop()
	repo := NewDocumentRepository(db, logger)
	users := NewUserRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "agent", workflow.RoleAgent)
	seedUser(t, users, "dg", workflow.RoleDG)
	require.NoError(t, repo.Create(ctx, newDraft("d1")))

	doc, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)

	now := time.Now()
	next := *doc
	next.Statut = workflow.StatusSoumis
	next.Reference = "ARTI102250001"
	next.SubmittedAt = &now
	require.NoError(t, repo.ApplyTransition(ctx, port.TransitionWrite{
		Document: &next, ExpectedStatut: workflow.StatusBrouillon, ExpectedStep: 1, ActorID: "agent",
	}))

	// a second writer that read brouillon loses
	stale := *doc
	stale.Statut = workflow.StatusSoumis
	err = repo.ApplyTransition(ctx, port.TransitionWrite{
		Document: &stale, ExpectedStatut: workflow.StatusBrouillon, ExpectedStep: 1, ActorID: "agent",
	})
	assert.ErrorIs(t, err, workflow.ErrConcurrentModification)

	byRef, err := repo.GetByReference(ctx, "ARTI102250001")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, workflow.StatusSoumis, byRef.Statut)
	assert.NotNil(t, byRef.SubmittedAt)

	validated := *byRef
	validated.Statut = workflow.StatusValide
	write := port.TransitionWrite{
		Document: &validated, ExpectedStatut: workflow.StatusSoumis, ExpectedStep: 1,
		ActorID: "agent", RequiredRoles: []workflow.Role{workflow.RoleDG},
	}
	assert.ErrorIs(t, repo.ApplyTransition(ctx, write), workflow.ErrNotAuthorized)

	write.ActorID = "dg"
	require.NoError(t, repo.ApplyTransition(ctx, write))

	rejected := validated
	rejected.Statut = workflow.StatusRejete
	err = repo.ApplyTransition(ctx, port.TransitionWrite{
		Document: &rejected, ExpectedStatut: workflow.StatusValide, ExpectedStep: 1,
	})
	assert.Error(t, err, "rejection without motif is refused by the schema")
}

func TestDocumentRepository_RoleRecheckHonoursDelegations(t *testing.T) {
	db := newTestDB(t)
	logger := zap.NewNop()
	repo := NewDocumentRepository(db, logger)
	users := NewUserRepository(db, logger)
	delegations := NewDelegationRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "dg", workflow.RoleDG)
	seedUser(t, users, "daaf", workflow.RoleDAAF)
	now := time.Now()
	require.NoError(t, delegations.Create(ctx, &entity.Delegation{
		GrantorID: "dg", DelegateID: "daaf", Kind: entity.DelegationKindInterim, Role: workflow.RoleDG,
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(24 * time.Hour), Active: true,
	}))

	active, err := delegations.GetActiveDelegations(ctx, "daaf", workflow.DocNoteSEF, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, entity.DelegationKindInterim, active[0].Kind)

	doc := newDraft("d1")
	doc.Statut = workflow.StatusSoumis
	require.NoError(t, repo.Create(ctx, doc))

	next := *doc
	next.Statut = workflow.StatusValide
	require.NoError(t, repo.ApplyTransition(ctx, port.TransitionWrite{
		Document: &next, ExpectedStatut: workflow.StatusSoumis, ExpectedStep: 1,
		ActorID: "daaf", RequiredRoles: []workflow.Role{workflow.RoleDG},
	}))

	require.NoError(t, delegations.Revoke(ctx, active[0].ID))
	active, err = delegations.GetActiveDelegations(ctx, "daaf", workflow.DocNoteSEF, now)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSequenceRepository_NextIsDistinctUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	repo := NewSequenceRepository(db, zap.NewNop())
	key := port.SequenceKey{DocType: "note_sef", Exercice: 2025, Scope: "global"}

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Next(context.Background(), key)
			if assert.NoError(t, err) {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for n := range results {
		assert.False(t, seen[n], "number %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)

	current, err := repo.Current(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), current)

	other, err := repo.Next(context.Background(), port.SequenceKey{DocType: "note_sef", Exercice: 2026, Scope: "global"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "counters restart per exercice")
}

func TestBudgetRepository_ReserveThenEngage(t *testing.T) {
	db := newTestDB(t)
	repo := NewBudgetRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.BudgetLine{
		ID: "bl1", Code: "6011", Exercice: 2025,
		Dotation: decimal.NewFromInt(1500000), Engage: decimal.NewFromInt(400000),
	}))

	ok, err := repo.Reserve(ctx, "bl1", decimal.NewFromInt(1200000))
	require.NoError(t, err)
	assert.False(t, ok, "reservation above the free credit")

	ok, err = repo.Reserve(ctx, "bl1", decimal.NewFromInt(1000000))
	require.NoError(t, err)
	assert.True(t, ok)

	line, err := repo.GetByID(ctx, "bl1")
	require.NoError(t, err)
	assert.True(t, line.Reserve.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, line.Disponible().Equal(decimal.NewFromInt(100000)))

	ok, err = repo.Engage(ctx, "bl1", decimal.NewFromInt(1000000), decimal.NewFromInt(1000000))
	require.NoError(t, err)
	assert.True(t, ok, "the engagement is covered by its reservation")

	line, err = repo.GetByID(ctx, "bl1")
	require.NoError(t, err)
	assert.True(t, line.Engage.Equal(decimal.NewFromInt(1400000)))
	assert.True(t, line.Reserve.IsZero())
	assert.True(t, line.Disponible().Equal(decimal.NewFromInt(100000)))

	ok, err = repo.Engage(ctx, "bl1", decimal.NewFromInt(200000), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Reserve(ctx, "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDossierRepository_UpsertEtape(t *testing.T) {
	db := newTestDB(t)
	repo := NewDossierRepository(db, zap.NewNop())
	ctx := context.Background()

	d := &entity.Dossier{
		ID: "ds1", Numero: "ARTI/2025/DAAF/0001", Exercice: 2025, TypeDossier: entity.DossierTypeSEF,
		StatutGlobal: entity.DossierStatusEnCours, EtapeCourante: entity.StageNoteSEF,
		MontantEstime: decimal.NewFromInt(1500000), CreatedBy: "dg",
	}
	require.NoError(t, repo.Create(ctx, d))

	etape := &entity.DossierEtape{DossierID: "ds1", TypeEtape: entity.StageEngagement, EntityID: "e1", Statut: workflow.StatusSoumis}
	require.NoError(t, repo.UpsertEtape(ctx, etape))
	etape.Statut = workflow.StatusValide
	etape.Montant = decimal.NewFromInt(1400000)
	require.NoError(t, repo.UpsertEtape(ctx, etape))

	etapes, err := repo.ListEtapes(ctx, "ds1")
	require.NoError(t, err)
	require.Len(t, etapes, 1)
	assert.Equal(t, workflow.StatusValide, etapes[0].Statut)
	assert.True(t, etapes[0].Montant.Equal(decimal.NewFromInt(1400000)))

	d.EtapeCourante = entity.StageEngagement
	d.MontantEngage = decimal.NewFromInt(1400000)
	require.NoError(t, repo.Update(ctx, d))

	got, err := repo.GetByNumero(ctx, "ARTI/2025/DAAF/0001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.StageEngagement, got.EtapeCourante)
	assert.True(t, got.MontantEngage.Equal(decimal.NewFromInt(1400000)))
}

func TestNotificationRepository_ReadState(t *testing.T) {
	db := newTestDB(t)
	repo := NewNotificationRepository(db, zap.NewNop())
	ctx := context.Background()

	for _, title := range []string{"Note soumise", "Note validée"} {
		require.NoError(t, repo.Insert(ctx, &entity.Notification{UserID: "agent", Type: entity.NotificationTypeInfo, Title: title}))
	}
	require.NoError(t, repo.Insert(ctx, &entity.Notification{UserID: "dg", Type: entity.NotificationTypeValidation, Title: "A valider"}))

	count, err := repo.CountUnread(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := repo.ListByUser(ctx, "agent", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Note validée", list[0].Title, "newest first")

	require.NoError(t, repo.MarkRead(ctx, list[0].ID, "agent"))
	require.NoError(t, repo.MarkRead(ctx, list[0].ID, "agent"))
	assert.ErrorIs(t, repo.MarkRead(ctx, list[0].ID, "dg"), workflow.ErrNotFound)

	unread, err := repo.ListByUser(ctx, "agent", true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestHistoryRepository_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db, zap.NewNop())
	tx := sqlite.NewDB(db, zap.NewNop())
	ctx := context.Background()

	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, &entity.HistoryEntry{DocumentID: "d1", DocType: workflow.DocNoteSEF,
			Action: workflow.HistoryCreation, NewStatut: workflow.StatusBrouillon, PerformedBy: "agent"}); err != nil {
			return err
		}
		return repo.Create(txCtx, &entity.HistoryEntry{DocumentID: "d1", DocType: workflow.DocNoteSEF,
			Action: workflow.HistorySoumission, OldStatut: workflow.StatusBrouillon, NewStatut: workflow.StatusSoumis, PerformedBy: "agent"})
	})
	require.NoError(t, err)

	entries, err := repo.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, workflow.HistorySoumission, entries[1].Action)

	_, err = db.Exec(`DELETE FROM history WHERE document_id = 'd1'`)
	assert.Error(t, err)
}

func TestWorkflowDefinitionRepository_SaveAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkflowDefinitionRepository(db, zap.NewNop())
	ctx := context.Background()

	def := &entity.WorkflowDefinition{
		EntityType: "note_sef", Name: "Circuit Note SEF", Active: true,
		Steps: []entity.WfStep{
			{StepOrder: 1, Label: "Directeur", RoleRequired: "DIRECTEUR"},
			{StepOrder: 2, Label: "DG", RoleRequired: "DG", RoleAlternatif: "DAAF",
				Permissions: []entity.WfStepPermission{{ActionCode: "VALIDATE", RoleCode: "DG", IsPrimary: true}}},
		},
	}
	require.NoError(t, repo.Save(ctx, def))

	def.Steps = def.Steps[1:]
	def.Steps[0].StepOrder = 1
	require.NoError(t, repo.Save(ctx, def), "saving again replaces the steps")

	defs, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Len(t, defs[0].Steps, 1)
	action, ok := defs[0].Steps[0].PrimaryAction()
	assert.True(t, ok)
	assert.Equal(t, "VALIDATE", action)

	actions, err := repo.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, actions, 6)

	missing, err := repo.GetByEntityType(ctx, "engagement")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAttachmentRepository(t *testing.T) {
	db := newTestDB(t)
	logger := zap.NewNop()
	docs := NewDocumentRepository(db, logger)
	repo := NewAttachmentRepository(db, logger)
	ctx := context.Background()

	require.NoError(t, docs.Create(ctx, newDraft("d1")))
	att := &entity.Attachment{ID: "a1", DocumentID: "d1", DocType: workflow.DocNoteSEF, Exercice: 2025,
		FileName: "devis.pdf", StorageKey: "2025/note_sef/d1/devis.pdf", Size: 42, UploadedBy: "agent"}
	require.NoError(t, repo.Create(ctx, att))

	list, err := repo.ListByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(42), list[0].Size)

	require.NoError(t, repo.Delete(ctx, "a1"))
	got, err := repo.GetByID(ctx, "a1")
	assert.NoError(t, err)
	assert.Nil(t, got)
}
