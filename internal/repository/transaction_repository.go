package repository

import (
	"context"
	"elearn_backend/internal/model"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	transactionKeyPrefix  = "transaction:"
	transactionPendingKey = "transactions:pending"
)

type TransactionRepository struct {
	DB *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{DB: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) Update(ctx context.Context, t *model.Transaction) error {
	return r.DB.WithContext(ctx).Save(t).Error
}

// Upsert 同步任务回传回退记录用
func (r *TransactionRepository) Upsert(ctx context.Context, t *model.Transaction) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(t).Error
}

func (r *TransactionRepository) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Transaction, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.Transaction{}).Where("student_id = ?", studentID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []model.Transaction
	offset := (page - 1) * limit
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// RedisTransactionRepository 交易的本地回退存储，只承担远端不可用时的
// 记账落盘，由同步任务回传。
type RedisTransactionRepository struct {
	Redis *redis.Client
}

func NewRedisTransactionRepository(rdb *redis.Client) *RedisTransactionRepository {
	return &RedisTransactionRepository{Redis: rdb}
}

func transactionKey(id string) string {
	return transactionKeyPrefix + id
}

func (r *RedisTransactionRepository) Save(ctx context.Context, t *model.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := r.Redis.TxPipeline()
	pipe.Set(ctx, transactionKey(t.ID), data, 0)
	pipe.SAdd(ctx, fmt.Sprintf("transactions:student:%d", t.StudentID), t.ID)
	pipe.SAdd(ctx, transactionPendingKey, t.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisTransactionRepository) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	val, err := r.Redis.Get(ctx, transactionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	var t model.Transaction
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RedisTransactionRepository) PendingIDs(ctx context.Context) ([]string, error) {
	return r.Redis.SMembers(ctx, transactionPendingKey).Result()
}

func (r *RedisTransactionRepository) ClearPending(ctx context.Context, id string) error {
	return r.Redis.SRem(ctx, transactionPendingKey, id).Err()
}
