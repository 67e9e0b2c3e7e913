package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
)

// LeaderboardService serves ranked, paginated leaderboards through the cache.
type LeaderboardService struct {
	store Store
	cache *cache.Layer
	ttls  cache.TTLs
	now   func() time.Time
}

func NewLeaderboardService(store Store, layer *cache.Layer, ttls cache.TTLs) *LeaderboardService {
	return &LeaderboardService{store: store, cache: layer, ttls: ttls, now: time.Now}
}

// WithClock is test-only for deterministic publication checks.
func (s *LeaderboardService) WithClock(now func() time.Time) *LeaderboardService {
	s.now = now
	return s
}

// QuizLeaderboard ranks every attempt of a quiz. Rank is the absolute position
// in the full ordering, so page 2 of size 30 starts at rank 31. A quiz that is
// not yet published is reported as not found unless includeUnpublished is set.
func (s *LeaderboardService) QuizLeaderboard(ctx context.Context, quizID string, req domain.PageRequest, includeUnpublished bool) (domain.Page[domain.RankedEntry], error) {
	req = req.Normalize()
	quiz, err := cache.Fetch(ctx, s.cache, domain.QuizDetailKey(quizID), s.ttls.QuizDetail,
		func(ctx context.Context) (domain.Quiz, error) {
			return s.store.GetQuiz(ctx, quizID)
		})
	if err != nil {
		return domain.Page[domain.RankedEntry]{}, err
	}
	if !includeUnpublished && !quiz.VisibleAt(s.now()) {
		return domain.Page[domain.RankedEntry]{}, domain.ErrQuizNotFound
	}

	return cache.Fetch(ctx, s.cache, domain.QuizLeaderboardKey(quizID, req), s.ttls.Leaderboard,
		func(ctx context.Context) (domain.Page[domain.RankedEntry], error) {
			if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
				return domain.Page[domain.RankedEntry]{}, err
			}

			var (
				total int
				rows  []domain.RankedEntry
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				total, err = s.store.CountAttempts(gctx, domain.AttemptFilter{QuizID: quizID})
				return err
			})
			g.Go(func() error {
				var err error
				rows, err = s.store.QuizLeaderboard(gctx, quizID, req.Offset(), req.PageSize)
				return err
			})
			if err := g.Wait(); err != nil {
				return domain.Page[domain.RankedEntry]{}, err
			}

			for i := range rows {
				rows[i].Rank = req.Offset() + i + 1
			}
			return domain.NewPage(rows, total, req), nil
		})
}

// GlobalLeaderboard ranks users by their summed results across all quizzes.
func (s *LeaderboardService) GlobalLeaderboard(ctx context.Context, req domain.PageRequest) (domain.Page[domain.GlobalRankedEntry], error) {
	req = req.Normalize()
	return cache.Fetch(ctx, s.cache, domain.GlobalLeaderboardKey(req), s.ttls.GlobalLeaderboard,
		func(ctx context.Context) (domain.Page[domain.GlobalRankedEntry], error) {
			var (
				total int
				rows  []domain.GlobalRankedEntry
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				total, err = s.store.CountPlayers(gctx)
				return err
			})
			g.Go(func() error {
				var err error
				rows, err = s.store.GlobalLeaderboard(gctx, req.Offset(), req.PageSize)
				return err
			})
			if err := g.Wait(); err != nil {
				return domain.Page[domain.GlobalRankedEntry]{}, err
			}

			for i := range rows {
				rows[i].Rank = req.Offset() + i + 1
			}
			return domain.NewPage(rows, total, req), nil
		})
}
