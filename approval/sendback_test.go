package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildThreeSteps() []*WorkflowStepPo {
	return []*WorkflowStepPo{
		{ID: 11, WorkflowID: 1, StepKey: "step1", StepOrder: 1},
		{ID: 12, WorkflowID: 1, StepKey: "step2", StepOrder: 2},
		{ID: 13, WorkflowID: 1, StepKey: "step3", StepOrder: 3, IsTerminal: true},
	}
}

func TestResolveSendBackStep(t *testing.T) {
	steps := buildThreeSteps()

	t.Run("previous退回上一步", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 12, StepKey: "step2", RejectTargetType: RejectTargetPrevious}
		target, err := resolveSendBackStep(current, steps, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(11), target.ID)
	})

	t.Run("第一步上previous报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 11, StepKey: "step1", RejectTargetType: RejectTargetPrevious}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrNoPreviousStep)
	})

	t.Run("submitter退回第一步", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetSubmitter}
		target, err := resolveSendBackStep(current, steps, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(11), target.ID)
	})

	t.Run("specific退回指定步骤", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetSpecific, RejectTargetStepID: Int64(12)}
		target, err := resolveSendBackStep(current, steps, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(12), target.ID)
	})

	t.Run("specific目标没有配置报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetSpecific}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrMissingRejectTarget)
	})

	t.Run("specific目标不在本定义里面报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetSpecific, RejectTargetStepID: Int64(99)}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrRejectTargetNotFound)
	})

	t.Run("runtime没有显式目标报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 12, StepKey: "step2", RejectTargetType: RejectTargetRuntime}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrRuntimeTargetRequired)
	})

	t.Run("runtime带显式目标", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetRuntime}
		target, err := resolveSendBackStep(current, steps, Int64(11))
		require.NoError(t, err)
		assert.Equal(t, int64(11), target.ID)
	})

	t.Run("未知的退回类型报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 12, StepKey: "step2", RejectTargetType: "whatever"}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrUnsupportedRejectTarget)
	})

	t.Run("乱序的步骤列表先排序再定位", func(t *testing.T) {
		shuffled := []*WorkflowStepPo{steps[2], steps[0], steps[1]}
		current := &WorkflowStepPo{ID: 13, StepKey: "step3", RejectTargetType: RejectTargetPrevious}
		target, err := resolveSendBackStep(current, shuffled, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(12), target.ID)
	})

	t.Run("当前步骤不在列表里面报错", func(t *testing.T) {
		current := &WorkflowStepPo{ID: 999, StepKey: "ghost", RejectTargetType: RejectTargetPrevious}
		_, err := resolveSendBackStep(current, steps, nil)
		assert.ErrorIs(t, err, ErrStepNotFound)
	})
}

func TestNextStepAfter(t *testing.T) {
	steps := buildThreeSteps()

	t.Run("正常推进", func(t *testing.T) {
		next, err := nextStepAfter(steps, steps[0])
		require.NoError(t, err)
		assert.Equal(t, int64(12), next.ID)
	})

	t.Run("最后一步之后没有步骤", func(t *testing.T) {
		_, err := nextStepAfter(steps, steps[2])
		assert.ErrorIs(t, err, ErrInvalidStepLayout)
	})
}
