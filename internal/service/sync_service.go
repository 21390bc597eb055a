package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/repository"
	"elearn_backend/pkg/logger"
	"elearn_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EnrollmentSyncTarget interface {
	Upsert(ctx context.Context, e *model.Enrollment) error
}

type TransactionSyncTarget interface {
	Upsert(ctx context.Context, t *model.Transaction) error
}

// TransactionFallbackSource 回退存储侧的待同步交易来源，
// repository.RedisTransactionRepository 满足它。
type TransactionFallbackSource interface {
	FindByID(ctx context.Context, id string) (*model.Transaction, error)
	PendingIDs(ctx context.Context) ([]string, error)
	ClearPending(ctx context.Context, id string) error
}

// SyncService 把远端不可用期间落在本地回退存储的记录回传远端。
// 同一时刻只允许一次 flush 在途；Stop 之后不再发起新的 flush，
// 在途的那一次结果照常落库（已经到达存储的写必须保留）。
type SyncService struct {
	EnrollmentRemote   EnrollmentSyncTarget
	EnrollmentFallback repository.FallbackEnrollmentRepository
	TxRemote           TransactionSyncTarget
	TxFallback         TransactionFallbackSource

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSyncService(
	enrollmentRemote EnrollmentSyncTarget,
	enrollmentFallback repository.FallbackEnrollmentRepository,
	txRemote TransactionSyncTarget,
	txFallback TransactionFallbackSource,
) *SyncService {
	return &SyncService{
		EnrollmentRemote:   enrollmentRemote,
		EnrollmentFallback: enrollmentFallback,
		TxRemote:           txRemote,
		TxFallback:         txFallback,
	}
}

// Start 周期触发 FlushPending，直到 Stop
func (s *SyncService) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.FlushPending(ctx); err != nil {
					logger.Log.Error("pending sync flush error", zap.Error(err))
				}
			}
		}
	}()
}

func (s *SyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// FlushPending 已有 flush 在途时直接返回（不是错误）
func (s *SyncService) FlushPending(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if err := s.flushEnrollments(ctx); err != nil {
		return err
	}
	return s.flushTransactions(ctx)
}

func (s *SyncService) flushEnrollments(ctx context.Context) error {
	ids, err := s.EnrollmentFallback.PendingIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		e, err := s.EnrollmentFallback.FindByID(ctx, id)
		if err != nil {
			logger.Log.Warn("pending enrollment vanished from fallback", zap.String("enrollmentId", id))
			continue
		}
		if err := s.EnrollmentRemote.Upsert(ctx, e); err != nil {
			// 远端还没恢复，下个周期再试
			logger.Log.Debug("enrollment sync still failing", zap.String("enrollmentId", id), zap.Error(err))
			continue
		}
		e.PendingSync = false
		if err := s.EnrollmentFallback.Save(ctx, e); err != nil {
			logger.Log.Warn("failed to clear pendingSync flag", zap.String("enrollmentId", id), zap.Error(err))
			continue
		}
		monitoring.SyncFlushes.WithLabelValues("enrollment").Inc()
		logger.Log.Info("enrollment synced to remote store", zap.String("enrollmentId", id))
	}
	return nil
}

func (s *SyncService) flushTransactions(ctx context.Context) error {
	ids, err := s.TxFallback.PendingIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		t, err := s.TxFallback.FindByID(ctx, id)
		if err != nil {
			logger.Log.Warn("pending transaction vanished from fallback", zap.String("txId", id))
			continue
		}
		if err := s.TxRemote.Upsert(ctx, t); err != nil {
			logger.Log.Debug("transaction sync still failing", zap.String("txId", id), zap.Error(err))
			continue
		}
		if err := s.TxFallback.ClearPending(ctx, id); err != nil {
			logger.Log.Warn("failed to clear pending transaction", zap.String("txId", id), zap.Error(err))
			continue
		}
		monitoring.SyncFlushes.WithLabelValues("transaction").Inc()
	}
	return nil
}
