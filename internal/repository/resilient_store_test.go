package repository

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.Log = zap.NewNop()
}

var errConnRefused = errors.New("connection refused")

// fakeRemote 内存版权威存储，down 置真时所有调用返回基础设施错误
type fakeRemote struct {
	byID map[string]*model.Enrollment
	down bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{byID: make(map[string]*model.Enrollment)}
}

func (f *fakeRemote) Create(ctx context.Context, e *model.Enrollment) error {
	if f.down {
		return errConnRefused
	}
	c := *e
	f.byID[e.ID] = &c
	return nil
}

func (f *fakeRemote) FindByID(ctx context.Context, id string) (*model.Enrollment, error) {
	if f.down {
		return nil, errConnRefused
	}
	e, ok := f.byID[id]
	if !ok {
		return nil, util.ErrEnrollmentNotFound
	}
	c := *e
	return &c, nil
}

func (f *fakeRemote) FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	if f.down {
		return nil, errConnRefused
	}
	for _, e := range f.byID {
		if e.StudentID == studentID && e.CourseID == courseID {
			c := *e
			return &c, nil
		}
	}
	return nil, util.ErrEnrollmentNotFound
}

func (f *fakeRemote) Update(ctx context.Context, e *model.Enrollment) error {
	if f.down {
		return errConnRefused
	}
	c := *e
	f.byID[e.ID] = &c
	return nil
}

func (f *fakeRemote) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error) {
	if f.down {
		return nil, 0, errConnRefused
	}
	var out []model.Enrollment
	for _, e := range f.byID {
		if e.StudentID == studentID {
			out = append(out, *e)
		}
	}
	return out, int64(len(out)), nil
}

// fakeFallback 内存版回退存储
type fakeFallback struct {
	fakeRemote
}

func newFakeFallback() *fakeFallback {
	return &fakeFallback{fakeRemote: fakeRemote{byID: make(map[string]*model.Enrollment)}}
}

func (f *fakeFallback) Save(ctx context.Context, e *model.Enrollment) error {
	if f.down {
		return errConnRefused
	}
	c := *e
	f.byID[e.ID] = &c
	return nil
}

func (f *fakeFallback) PendingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id, e := range f.byID {
		if e.PendingSync {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newEnrollment(studentID, courseID uint) *model.Enrollment {
	return &model.Enrollment{
		UUIDBase:         model.UUIDBase{ID: model.GenerateUUID()},
		StudentID:        studentID,
		CourseID:         courseID,
		EnrolledAt:       time.Now(),
		CompletedLessons: model.LessonIDSet{},
	}
}

func TestCreateMirrorsToFallback(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	e := newEnrollment(7, 42)
	require.NoError(t, store.Create(ctx, e))

	// 两边都有，镜像不带待同步标记
	assert.Contains(t, remote.byID, e.ID)
	require.Contains(t, fallback.byID, e.ID)
	assert.False(t, fallback.byID[e.ID].PendingSync)
}

func TestCreateFallsBackWhenRemoteDown(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	e := newEnrollment(7, 42)
	require.NoError(t, store.Create(ctx, e))

	assert.Empty(t, remote.byID)
	require.Contains(t, fallback.byID, e.ID)
	assert.True(t, fallback.byID[e.ID].PendingSync)

	pending, err := fallback.PendingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, pending)
}

func TestCreateBothStoresDownSurfacesError(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	fallback := newFakeFallback()
	fallback.down = true
	store := NewResilientEnrollmentStore(remote, fallback)

	err := store.Create(context.Background(), newEnrollment(7, 42))
	assert.ErrorIs(t, err, util.ErrRemoteUnavailable)
}

func TestRemoteNotFoundDoesNotConsultFallback(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	// 回退存储里残留一条远端早已不存在的陈旧记录
	stale := newEnrollment(7, 42)
	require.NoError(t, fallback.Save(ctx, stale))

	// 远端“没有记录”是一次成功响应，不触发回退读取
	_, err := store.FindByStudentAndCourse(ctx, 7, 42)
	assert.ErrorIs(t, err, util.ErrEnrollmentNotFound)
}

func TestInfraErrorReadsFallback(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	e := newEnrollment(7, 42)
	require.NoError(t, store.Create(ctx, e))

	remote.down = true
	found, err := store.FindByStudentAndCourse(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, e.ID, found.ID)
}

func TestSuccessfulRemoteReadOverwritesFallback(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	e := newEnrollment(7, 42)
	require.NoError(t, store.Create(ctx, e))

	// 远端短暂不可用期间进度写到了回退存储
	remote.down = true
	e.CompletedLessons = model.LessonIDSet{"l1"}
	e.Progress = 25
	require.NoError(t, store.Update(ctx, e))
	assert.True(t, fallback.byID[e.ID].PendingSync)

	// 远端恢复后，远端上更新的版本整条覆盖本地副本
	remote.down = false
	remote.byID[e.ID].CompletedLessons = model.LessonIDSet{"l1", "l2"}
	remote.byID[e.ID].Progress = 50

	found, err := store.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, found.Progress)

	// 本地副本被整条替换，待同步标记一并清掉
	assert.Equal(t, 50, fallback.byID[e.ID].Progress)
	assert.False(t, fallback.byID[e.ID].PendingSync)
	assert.ElementsMatch(t, []string{"l1", "l2"}, []string(fallback.byID[e.ID].CompletedLessons))
}

func TestUpdateFallsBackWithSameValue(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	e := newEnrollment(7, 42)
	require.NoError(t, store.Create(ctx, e))

	remote.down = true
	e.CompletedLessons = model.LessonIDSet{"l1", "l3"}
	e.Progress = 50
	require.NoError(t, store.Update(ctx, e))

	// 回退存储持有与调用方完全一致的整条值
	saved := fallback.byID[e.ID]
	assert.Equal(t, 50, saved.Progress)
	assert.ElementsMatch(t, []string{"l1", "l3"}, []string(saved.CompletedLessons))
}

func TestListByStudentUsesSingleStore(t *testing.T) {
	remote := newFakeRemote()
	fallback := newFakeFallback()
	store := NewResilientEnrollmentStore(remote, fallback)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newEnrollment(7, 1)))
	require.NoError(t, store.Create(ctx, newEnrollment(7, 2)))

	// 远端可用：整页来自远端
	list, total, err := store.ListByStudent(ctx, 7, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), total)

	// 远端挂掉：整页换回退存储，绝不混合
	remote.down = true
	list, total, err = store.ListByStudent(ctx, 7, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), total)
}
