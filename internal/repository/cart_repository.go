package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const cartKeyPrefix = "cart:"

// CartRepository 购物车按学员一个 Redis 集合存课程 ID，结算成功后整体清空。
type CartRepository struct {
	Redis *redis.Client
}

func NewCartRepository(rdb *redis.Client) *CartRepository {
	return &CartRepository{Redis: rdb}
}

func cartKey(studentID uint) string {
	return fmt.Sprintf("%s%d", cartKeyPrefix, studentID)
}

func (r *CartRepository) Add(ctx context.Context, studentID, courseID uint) error {
	return r.Redis.SAdd(ctx, cartKey(studentID), strconv.FormatUint(uint64(courseID), 10)).Err()
}

func (r *CartRepository) Remove(ctx context.Context, studentID, courseID uint) error {
	return r.Redis.SRem(ctx, cartKey(studentID), strconv.FormatUint(uint64(courseID), 10)).Err()
}

func (r *CartRepository) List(ctx context.Context, studentID uint) ([]uint, error) {
	members, err := r.Redis.SMembers(ctx, cartKey(studentID)).Result()
	if err != nil {
		return nil, err
	}
	courseIDs := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		courseIDs = append(courseIDs, uint(id))
	}
	return courseIDs, nil
}

func (r *CartRepository) Clear(ctx context.Context, studentID uint) error {
	return r.Redis.Del(ctx, cartKey(studentID)).Err()
}
