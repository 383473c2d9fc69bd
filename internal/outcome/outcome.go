package outcome

import (
	"context"
	"encoding/json"

	models "arkado/internal/models"
	store "arkado/internal/store"
	util "arkado/internal/util"
)

// Build folds a score submission into the tagged outcome variant. A
// qualifying result without a voucher means the earned tier's pool was
// exhausted; that renders its own message and offers no claim action.
func Build(gameType string, score int, result models.ScoreResult) models.GameOutcome {
	if !result.Qualifies {
		return models.GameOutcome{
			Kind:     models.OutcomeNotQualified,
			GameType: gameType,
			Score:    score,
		}
	}
	if result.Voucher == nil {
		return models.GameOutcome{
			Kind:     models.OutcomeQualifiedExhausted,
			GameType: gameType,
			Score:    score,
			Tier:     result.Tier,
		}
	}
	return models.GameOutcome{
		Kind:     models.OutcomeQualified,
		GameType: gameType,
		Score:    score,
		Tier:     result.Tier,
		Voucher:  result.Voucher,
	}
}

// FromRecord rebuilds an outcome from the remote side's reward record.
func FromRecord(record models.RewardRecord) models.GameOutcome {
	return Build(record.GameType, record.Score, models.ScoreResult{
		Qualifies: record.Qualifies,
		Tier:      record.Tier,
		Voucher:   record.Voucher,
	})
}

// Cache stores the outcome in the visit scope for the immediately
// following results page.
func Cache(scope *store.Scope, o models.GameOutcome) {
	raw, err := json.Marshal(o)
	if err != nil {
		util.LogWarn("Failed to cache outcome for visit %s: %v", scope.VisitID(), err)
		return
	}
	scope.SetCachedOutcome(string(raw))
}

// Cached reads the locally cached outcome, tolerating corrupt data as
// absent.
func Cached(scope *store.Scope) (models.GameOutcome, bool) {
	raw, ok := scope.CachedOutcome()
	if !ok {
		return models.GameOutcome{}, false
	}
	var o models.GameOutcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		util.LogWarn("Corrupt cached outcome for visit %s: %v", scope.VisitID(), err)
		scope.ClearCachedOutcome()
		return models.GameOutcome{}, false
	}
	return o, true
}

// Reconcile resolves the outcome to show on the results page. Primary
// path is the local cache; if the page was loaded without it (reload,
// external navigation) the remote service's latest reward for the
// session rebuilds an equivalent outcome. The second return is false
// only when neither source can produce one — the caller must then
// redirect, never render an ambiguous result screen.
func Reconcile(ctx context.Context, scope *store.Scope, svc models.RemoteService) (models.GameOutcome, bool) {
	if o, ok := Cached(scope); ok {
		return o, true
	}

	sessionID := scope.SessionID()
	if sessionID == "" {
		return models.GameOutcome{}, false
	}

	record, err := svc.LatestReward(ctx, sessionID)
	if err != nil {
		util.LogWarn("Reward fallback failed for session %s: %v", sessionID, err)
		return models.GameOutcome{}, false
	}
	o := FromRecord(record)
	Cache(scope, o)
	return o, true
}
