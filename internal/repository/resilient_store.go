package repository

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"elearn_backend/pkg/monitoring"
	"errors"

	"go.uber.org/zap"
)

// ResilientEnrollmentStore 远端优先的双存储组合。
// 规则：回退存储只在远端调用出错时参与；远端的成功响应（包括“没有记录”）
// 永远覆盖本地的陈旧副本；同一查询绝不混合两个存储的部分结果。
type ResilientEnrollmentStore struct {
	Remote   EnrollmentRepository
	Fallback FallbackEnrollmentRepository
}

func NewResilientEnrollmentStore(remote EnrollmentRepository, fallback FallbackEnrollmentRepository) *ResilientEnrollmentStore {
	return &ResilientEnrollmentStore{Remote: remote, Fallback: fallback}
}

func isNotFound(err error) bool {
	return errors.Is(err, util.ErrEnrollmentNotFound)
}

// refreshFallback 远端读成功后刷新本地副本（整条覆盖，尽力而为）
func (s *ResilientEnrollmentStore) refreshFallback(ctx context.Context, e *model.Enrollment) {
	mirror := *e
	mirror.PendingSync = false
	if err := s.Fallback.Save(ctx, &mirror); err != nil {
		logger.Log.Warn("fallback refresh failed", zap.String("enrollmentId", e.ID), zap.Error(err))
	}
}

func (s *ResilientEnrollmentStore) FindByID(ctx context.Context, id string) (*model.Enrollment, error) {
	e, err := s.Remote.FindByID(ctx, id)
	if err == nil {
		s.refreshFallback(ctx, e)
		return e, nil
	}
	if isNotFound(err) {
		return nil, err
	}
	logger.Log.Warn("remote store unavailable, reading fallback", zap.Error(err))
	return s.Fallback.FindByID(ctx, id)
}

func (s *ResilientEnrollmentStore) FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	e, err := s.Remote.FindByStudentAndCourse(ctx, studentID, courseID)
	if err == nil {
		s.refreshFallback(ctx, e)
		return e, nil
	}
	if isNotFound(err) {
		return nil, err
	}
	logger.Log.Warn("remote store unavailable, reading fallback", zap.Error(err))
	return s.Fallback.FindByStudentAndCourse(ctx, studentID, courseID)
}

// Create 远端写成功则镜像到本地；远端不可用则写本地并标记 pendingSync，
// 等待同步任务回传。两边都失败才把错误抛给调用方。
func (s *ResilientEnrollmentStore) Create(ctx context.Context, e *model.Enrollment) error {
	err := s.Remote.Create(ctx, e)
	if err == nil {
		s.refreshFallback(ctx, e)
		return nil
	}

	logger.Log.Warn("remote create failed, writing fallback", zap.Error(err))
	monitoring.FallbackWrites.WithLabelValues("create").Inc()
	e.PendingSync = true
	if fbErr := s.Fallback.Save(ctx, e); fbErr != nil {
		return util.ErrRemoteUnavailable
	}
	return nil
}

// Update 同 Create：远端优先，失败时同一份值整条写入回退存储，
// 保证两个存储在读上不会分叉，只在同步时效上不同。
func (s *ResilientEnrollmentStore) Update(ctx context.Context, e *model.Enrollment) error {
	err := s.Remote.Update(ctx, e)
	if err == nil {
		s.refreshFallback(ctx, e)
		return nil
	}

	logger.Log.Warn("remote update failed, writing fallback", zap.Error(err))
	monitoring.FallbackWrites.WithLabelValues("update").Inc()
	e.PendingSync = true
	if fbErr := s.Fallback.Save(ctx, e); fbErr != nil {
		return util.ErrRemoteUnavailable
	}
	return nil
}

// ListByStudent 整页来自同一个存储：远端成功用远端，否则整页换回退存储。
func (s *ResilientEnrollmentStore) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error) {
	enrollments, total, err := s.Remote.ListByStudent(ctx, studentID, page, limit)
	if err == nil {
		return enrollments, total, nil
	}
	logger.Log.Warn("remote list failed, reading fallback", zap.Error(err))
	return s.Fallback.ListByStudent(ctx, studentID, page, limit)
}
