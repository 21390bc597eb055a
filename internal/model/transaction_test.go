package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionStatusTransitions(t *testing.T) {
	// pending 只能走向终态
	assert.True(t, TransactionPending.CanTransition(TransactionCompleted))
	assert.True(t, TransactionPending.CanTransition(TransactionFailed))
	assert.False(t, TransactionPending.CanTransition(TransactionRefunded))
	assert.False(t, TransactionPending.CanTransition(TransactionPending))

	// completed 只允许退款
	assert.True(t, TransactionCompleted.CanTransition(TransactionRefunded))
	assert.False(t, TransactionCompleted.CanTransition(TransactionPending))
	assert.False(t, TransactionCompleted.CanTransition(TransactionFailed))

	// 终态不可离开
	assert.False(t, TransactionFailed.CanTransition(TransactionPending))
	assert.False(t, TransactionFailed.CanTransition(TransactionCompleted))
	assert.False(t, TransactionRefunded.CanTransition(TransactionCompleted))
}

func TestLessonIDSet(t *testing.T) {
	s := LessonIDSet{}
	s = s.Add("l1")
	s = s.Add("l2")
	s = s.Add("l1") // 重复加入不产生副本

	assert.Len(t, s, 2)
	assert.True(t, s.Contains("l1"))
	assert.True(t, s.Contains("l2"))
	assert.False(t, s.Contains("l3"))
}
