package approval

import (
	"sort"

	"github.com/pkg/errors"
)

// sortStepsByOrder 返回按step_order升序的副本,不改动入参
func sortStepsByOrder(steps []*WorkflowStepPo) []*WorkflowStepPo {
	ordered := make([]*WorkflowStepPo, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StepOrder < ordered[j].StepOrder
	})
	return ordered
}

// resolveSendBackStep 计算驳回之后退回到哪个步骤
// 每次调用都重新排序重新定位当前下标,不缓存
// overrideStepID 只在runtime类型时使用,由驳回的审批人显式指定
func resolveSendBackStep(currentStep *WorkflowStepPo, steps []*WorkflowStepPo, overrideStepID *int64) (*WorkflowStepPo, error) {
	ordered := sortStepsByOrder(steps)
	currentIndex := -1
	for i, step := range ordered {
		if step.ID == currentStep.ID {
			currentIndex = i
			break
		}
	}
	if currentIndex < 0 {
		return nil, errors.WithMessagef(ErrStepNotFound, "current step not in workflow, stepID: %d", currentStep.ID)
	}

	switch currentStep.RejectTargetType {
	case RejectTargetPrevious:
		if currentIndex == 0 {
			return nil, errors.WithMessagef(ErrNoPreviousStep, "stepKey: %s", currentStep.StepKey)
		}
		return ordered[currentIndex-1], nil
	case RejectTargetSubmitter:
		// 退回第一步,即提交人的重新提交点
		return ordered[0], nil
	case RejectTargetSpecific:
		if currentStep.RejectTargetStepID == nil {
			return nil, errors.WithMessagef(ErrMissingRejectTarget, "stepKey: %s", currentStep.StepKey)
		}
		return findStepByID(ordered, *currentStep.RejectTargetStepID)
	case RejectTargetRuntime:
		if overrideStepID == nil {
			return nil, errors.WithMessagef(ErrRuntimeTargetRequired, "stepKey: %s", currentStep.StepKey)
		}
		return findStepByID(ordered, *overrideStepID)
	default:
		return nil, errors.WithMessagef(ErrUnsupportedRejectTarget, "stepKey: %s, rejectTargetType: %s", currentStep.StepKey, currentStep.RejectTargetType)
	}
}

func findStepByID(steps []*WorkflowStepPo, stepID int64) (*WorkflowStepPo, error) {
	for _, step := range steps {
		if step.ID == stepID {
			return step, nil
		}
	}
	return nil, errors.WithMessagef(ErrRejectTargetNotFound, "targetStepID: %d", stepID)
}
