package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eyedema/ttstats/internal/config"
	"github.com/Eyedema/ttstats/internal/database"
	"github.com/Eyedema/ttstats/internal/domain"
	"github.com/Eyedema/ttstats/internal/repository"

	"github.com/rs/zerolog"
)

type testEnv struct {
	playerRepo  *repository.PlayerRepository
	matchRepo   *repository.MatchRepository
	historyRepo *repository.EloHistoryRepository
	matchSvc    *MatchService
	ratingSvc   *RatingService
	recalcSvc   *RecalcService
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "ttstats-test.db")}

	db, err := database.New(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	playerRepo := repository.NewPlayerRepository(db, logger)
	matchRepo := repository.NewMatchRepository(db, logger)
	historyRepo := repository.NewEloHistoryRepository(db, logger)

	ratingSvc := NewRatingService(db, matchRepo, playerRepo, historyRepo, logger)
	matchSvc := NewMatchService(matchRepo, playerRepo, ratingSvc, logger)
	recalcSvc := NewRecalcService(db, matchRepo, playerRepo, historyRepo, logger)

	return &testEnv{
		playerRepo:  playerRepo,
		matchRepo:   matchRepo,
		historyRepo: historyRepo,
		matchSvc:    matchSvc,
		ratingSvc:   ratingSvc,
		recalcSvc:   recalcSvc,
	}
}

func (e *testEnv) createPlayer(t *testing.T, name string) *domain.Player {
	t.Helper()
	player, err := e.playerRepo.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("Failed to create player %s: %v", name, err)
	}
	return player
}

// recordAndConfirm plays a finished singles match and confirms it for both
// participants.
func (e *testEnv) recordAndConfirm(t *testing.T, winner, loser string, playedAt time.Time) *domain.Match {
	t.Helper()
	ctx := context.Background()

	match, err := e.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{winner},
		SideB:     []string{loser},
		Games:     []GameScore{{11, 5}, {9, 11}, {11, 7}, {11, 8}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  playedAt,
	})
	if err != nil {
		t.Fatalf("Failed to record match: %v", err)
	}

	for _, id := range []string{winner, loser} {
		if err := e.matchSvc.Confirm(ctx, match.ID, id); err != nil {
			t.Fatalf("Failed to confirm match for %s: %v", id, err)
		}
	}
	return match
}

func TestConfirmTriggersRating(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	alice := env.createPlayer(t, "alice")
	bob := env.createPlayer(t, "bob")

	match, err := env.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{alice.ID},
		SideB:     []string{bob.ID},
		Games:     []GameScore{{11, 5}, {11, 7}, {11, 9}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to record match: %v", err)
	}

	// One confirmation is not enough.
	if err := env.matchSvc.Confirm(ctx, match.ID, alice.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	p, err := env.playerRepo.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.EloRating != 1500 {
		t.Errorf("Rating changed before full confirmation: %v", p.EloRating)
	}

	if err := env.matchSvc.Confirm(ctx, match.ID, bob.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	// Both new players, equal ratings, casual BO5: K = 48, delta = 24.
	p, err = env.playerRepo.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.EloRating != 1524 || p.EloPeak != 1524 || p.MatchesForElo != 1 {
		t.Errorf("Unexpected winner state: rating=%v peak=%v matches=%d",
			p.EloRating, p.EloPeak, p.MatchesForElo)
	}

	p, err = env.playerRepo.Get(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.EloRating != 1476 || p.EloPeak != 1500 || p.MatchesForElo != 1 {
		t.Errorf("Unexpected loser state: rating=%v peak=%v matches=%d",
			p.EloRating, p.EloPeak, p.MatchesForElo)
	}

	stored, err := env.matchRepo.Get(ctx, match.ID)
	if err != nil {
		t.Fatalf("Get match failed: %v", err)
	}
	if stored.Status != domain.MatchRated {
		t.Errorf("Expected match status rated, got %s", stored.Status)
	}

	history, err := env.historyRepo.ListByPlayer(ctx, alice.ID, 10)
	if err != nil {
		t.Fatalf("ListByPlayer failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 history record, got %d", len(history))
	}
	if history[0].RatingChange != 24 || history[0].KFactor != 48 {
		t.Errorf("Unexpected history record: %+v", history[0])
	}
}

func TestApplyMatchIsIdempotent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	alice := env.createPlayer(t, "alice")
	bob := env.createPlayer(t, "bob")
	match := env.recordAndConfirm(t, alice.ID, bob.ID, time.Now())

	// The confirmation flow already applied the rating; a second apply
	// must be a no-op.
	if err := env.ratingSvc.ApplyMatch(ctx, match.ID); err != nil {
		t.Fatalf("ApplyMatch failed: %v", err)
	}

	p, err := env.playerRepo.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.EloRating != 1524 || p.MatchesForElo != 1 {
		t.Errorf("Rating applied twice: rating=%v matches=%d", p.EloRating, p.MatchesForElo)
	}

	count, err := env.historyRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 history records, got %d", count)
	}
}

func TestRecordRejectsBadMatches(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	alice := env.createPlayer(t, "alice")
	bob := env.createPlayer(t, "bob")

	// Tied game.
	_, err := env.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{alice.ID},
		SideB:     []string{bob.ID},
		Games:     []GameScore{{11, 11}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  time.Now(),
	})
	if err == nil {
		t.Error("Expected error for tied game")
	}

	// Unfinished match: 2-1 in a best of 5.
	_, err = env.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{alice.ID},
		SideB:     []string{bob.ID},
		Games:     []GameScore{{11, 5}, {5, 11}, {11, 5}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  time.Now(),
	})
	if err == nil {
		t.Error("Expected error for unfinished match")
	}

	// Unknown player.
	_, err = env.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{alice.ID},
		SideB:     []string{"ghost"},
		Games:     []GameScore{{11, 5}, {11, 5}, {11, 5}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  time.Now(),
	})
	if err == nil {
		t.Error("Expected error for unknown player")
	}
}

func TestDoublesNeedsFourConfirmations(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	ids := make([]string, 4)
	for i, name := range []string{"a1", "a2", "b1", "b2"} {
		ids[i] = env.createPlayer(t, name).ID
	}

	match, err := env.matchSvc.Record(ctx, RecordMatchParams{
		SideA:     []string{ids[0], ids[1]},
		SideB:     []string{ids[2], ids[3]},
		Games:     []GameScore{{11, 5}, {11, 7}, {11, 9}},
		MatchType: domain.MatchCasual,
		BestOf:    5,
		PlayedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to record doubles match: %v", err)
	}

	for _, id := range ids[:3] {
		if err := env.matchSvc.Confirm(ctx, match.ID, id); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
	}

	stored, err := env.matchRepo.Get(ctx, match.ID)
	if err != nil {
		t.Fatalf("Get match failed: %v", err)
	}
	if stored.Status != domain.MatchUnconfirmed {
		t.Errorf("Match confirmed after 3 of 4 confirmations: %s", stored.Status)
	}

	if err := env.matchSvc.Confirm(ctx, match.ID, ids[3]); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	stored, err = env.matchRepo.Get(ctx, match.ID)
	if err != nil {
		t.Fatalf("Get match failed: %v", err)
	}
	if stored.Status != domain.MatchRated {
		t.Errorf("Expected match rated after full confirmation, got %s", stored.Status)
	}
}

func TestRecalcReproducesLiveRatings(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	alice := env.createPlayer(t, "alice")
	bob := env.createPlayer(t, "bob")
	carol := env.createPlayer(t, "carol")

	playedAt := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	env.recordAndConfirm(t, alice.ID, bob.ID, playedAt)
	env.recordAndConfirm(t, bob.ID, carol.ID, playedAt.Add(time.Hour))
	env.recordAndConfirm(t, alice.ID, carol.ID, playedAt.Add(2*time.Hour))

	before := map[string]domain.Player{}
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		p, err := env.playerRepo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		before[id] = *p
	}

	summary, err := env.recalcSvc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Recalc failed: %v", err)
	}
	if summary.Matches != 3 {
		t.Errorf("Expected 3 matches replayed, got %d", summary.Matches)
	}

	// Replaying the same history in the same order reproduces the live
	// ratings exactly.
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		p, err := env.playerRepo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if p.EloRating != before[id].EloRating || p.EloPeak != before[id].EloPeak ||
			p.MatchesForElo != before[id].MatchesForElo {
			t.Errorf("Recalc diverged for %s: %+v vs %+v", p.Name, p, before[id])
		}
	}

	count, err := env.historyRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 6 {
		t.Errorf("Expected 6 regenerated history records, got %d", count)
	}
}

func TestRecalcDryRunTouchesNothing(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	alice := env.createPlayer(t, "alice")
	bob := env.createPlayer(t, "bob")
	env.recordAndConfirm(t, alice.ID, bob.ID, time.Now())

	summary, err := env.recalcSvc.Run(ctx, true)
	if err != nil {
		t.Fatalf("Dry-run recalc failed: %v", err)
	}
	if !summary.DryRun {
		t.Error("Summary not flagged as dry run")
	}
	if summary.Matches != 1 {
		t.Errorf("Expected 1 match in summary, got %d", summary.Matches)
	}

	for _, diff := range summary.Players {
		if diff.OldRating != diff.NewRating {
			t.Errorf("Dry run over unchanged history should report no diff for %s: %+v", diff.Name, diff)
		}
	}

	p, err := env.playerRepo.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.EloRating != 1524 {
		t.Errorf("Dry run mutated ratings: %v", p.EloRating)
	}
}
