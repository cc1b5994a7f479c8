package finance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/catalog"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// Report содержит сводку за период и признак её актуальности.
type Report struct {
	Range       Range     `json:"range"`
	Since       time.Time `json:"since"`
	GeneratedAt time.Time `json:"generatedAt"`
	Stale       bool      `json:"stale"`
	Summary
}

// cacheKey отделяет сводки разных пользователей: под RLS каждый видит
// только доступные ему строки.
type cacheKey struct {
	actor string
	r     Range
}

// Aggregator загружает платежи и бронирования за период и сводит их.
type Aggregator struct {
	payments *repository.Table[model.Payment]
	bookings *repository.Table[model.Booking]
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[cacheKey]Report
}

// NewAggregator создаёт агрегатор поверх источника данных.
func NewAggregator(src repository.Source, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		payments: repository.NewTable[model.Payment](src, repository.TablePayments, logger),
		// Бронирование с неизвестным статусом всё равно входит в общее число.
		bookings: repository.NewTable[model.Booking](src, repository.TableBookings, logger).Unchecked(),
		logger:   logger,
		now:      time.Now,
		last:     make(map[cacheKey]Report),
	}
}

// Refresh параллельно загружает подтверждённые платежи, ожидающие платежи
// и бронирования за период. Ошибка любого запроса прерывает обновление:
// возвращается предыдущая сводка того же пользователя за этот период
// с признаком Stale и ошибка.
func (a *Aggregator) Refresh(ctx context.Context, r Range) (Report, error) {
	now := a.now()
	since := r.Since(now)
	actor, _ := catalog.ActorFrom(ctx)
	key := cacheKey{actor: actor, r: r}

	var (
		confirmed []model.Payment
		pending   []model.Payment
		bookings  []model.Booking
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		confirmed, err = a.payments.List(gctx, paymentsQuery(model.PaymentConfirmed, since))
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = a.payments.List(gctx, paymentsQuery(model.PaymentPending, since))
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = a.bookings.List(gctx, repository.Query{}.
			Where(repository.Gte("created_at", since)).
			OrderBy("created_at", true))
		return err
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("failed to refresh financial summary", zap.String("range", string(r)), zap.Error(err))

		a.mu.Lock()
		prev, ok := a.last[key]
		a.mu.Unlock()

		if !ok {
			return Report{}, fmt.Errorf("refresh %s: %w", r, err)
		}
		prev.Stale = true
		return prev, fmt.Errorf("refresh %s: %w", r, err)
	}

	summary := ComputeSummary(confirmed, bookings)
	summary.AddPending(pending)

	report := Report{
		Range:       r,
		Since:       since,
		GeneratedAt: now,
		Summary:     summary,
	}

	a.mu.Lock()
	a.last[key] = report
	a.mu.Unlock()

	return report, nil
}

func paymentsQuery(status model.PaymentStatus, since time.Time) repository.Query {
	return repository.Query{}.
		Where(repository.Eq("status", string(status)), repository.Gte("created_at", since)).
		OrderBy("created_at", true)
}
