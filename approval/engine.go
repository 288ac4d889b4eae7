package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// 辅助函数：替代 String 和 Bool
func String(s string) *string { return &s }
func Bool(b bool) *bool       { return &b }
func Int64(i int64) *int64    { return &i }

func noLimitPager() *Pager {
	return &Pager{IsNoLimit: Bool(true)}
}

type StartWorkflowReq struct {
	WorkflowCode string `json:"workflow_code" validate:"required"`
	RefType      string `json:"ref_type" validate:"required"` // 被审批的业务对象类型,比如 project_proposal
	RefID        string `json:"ref_id" validate:"required"`
	SubmitterID  int64  `json:"submitter_id" validate:"gt=0"`
}

type StartWorkflowResp struct {
	InstanceID     int64 `json:"instance_id"`
	CurrentStepID  int64 `json:"current_step_id"`
	StepInstanceID int64 `json:"step_instance_id"`
}

type ApproveReq struct {
	StepInstanceID int64  `json:"step_instance_id" validate:"gt=0"`
	ActorID        int64  `json:"actor_id" validate:"gt=0"`
	Comment        string `json:"comment"`
}

type RejectReq struct {
	StepInstanceID int64  `json:"step_instance_id" validate:"gt=0"`
	ActorID        int64  `json:"actor_id" validate:"gt=0"`
	Comment        string `json:"comment"`
	// runtime类型的退回目标由审批人在驳回时显式指定,其他类型忽略
	TargetStepID *int64 `json:"target_step_id"`
}

type DecisionResp struct {
	InstanceStatus InstanceStatus     `json:"instance_status"`
	StepStatus     StepInstanceStatus `json:"step_status"`
	// 推进或者退回之后新开的步骤实例ID,终止时为空
	NextStepInstanceID *int64 `json:"next_step_instance_id"`
}

func (s *ApprovalServiceImpl) StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*StartWorkflowResp, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "StartWorkflow failed, req: %v,err: %v", req, err)
	}
	resp := &StartWorkflowResp{}
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		// 取激活版本,0个或者多个都是配置错误,绝对不能悄悄选一个
		workflows, err := s.repo.QueryWorkflow(ctx, &QueryWorkflowParams{
			Code:     &req.WorkflowCode,
			IsActive: Bool(true),
			Page: &Pager{
				Page: 1,
				Size: 2,
			},
		})
		if err != nil {
			return errors.WithMessagef(err, "QueryWorkflow failed, code: %s", req.WorkflowCode)
		}
		if len(workflows) == 0 {
			return errors.WithMessagef(ErrNoActiveWorkflow, "code: %s", req.WorkflowCode)
		}
		if len(workflows) > 1 {
			return errors.WithMessagef(ErrAmbiguousActiveWorkflow, "code: %s", req.WorkflowCode)
		}
		workflow := workflows[0]

		steps, err := s.loadOrderedSteps(ctx, workflow.ID)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return errors.WithMessagef(ErrEmptyWorkflow, "workflowID: %d", workflow.ID)
		}
		firstStep := steps[0]

		instance, err := s.repo.CreateInstance(ctx, &InstancePo{
			WorkflowID:  workflow.ID,
			RefType:     req.RefType,
			RefID:       req.RefID,
			Status:      InstanceStatusInProgress,
			SubmitterID: req.SubmitterID,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateInstance failed, code: %s", req.WorkflowCode)
		}

		stepInstance, err := s.openStepInstance(ctx, instance, firstStep, nil)
		if err != nil {
			return errors.WithMessagef(err, "openStepInstance failed, instanceID: %d", instance.ID)
		}
		if _, err := s.repo.UpdateInstance(ctx, &UpdateInstanceParams{
			Where: &UpdateInstanceWhere{
				IDIn: []int64{instance.ID},
			},
			Fields: &UpdateInstanceField{
				CurrentStepID: &firstStep.ID,
			},
			LimitMax: 1,
		}); err != nil {
			return errors.WithMessagef(err, "UpdateInstance failed, instanceID: %d", instance.ID)
		}
		if _, err := s.repo.CreateActionLog(ctx, &ActionLogPo{
			InstanceID: instance.ID,
			Action:     ActionSubmit,
			ActorID:    req.SubmitterID,
		}); err != nil {
			return errors.WithMessagef(err, "CreateActionLog failed, instanceID: %d", instance.ID)
		}
		resp.InstanceID = instance.ID
		resp.CurrentStepID = firstStep.ID
		resp.StepInstanceID = stepInstance.ID
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "StartWorkflow failed, code: %s", req.WorkflowCode)
	}
	return resp, nil
}

func (s *ApprovalServiceImpl) Approve(ctx context.Context, req *ApproveReq) (*DecisionResp, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "Approve failed, req: %v,err: %v", req, err)
	}
	instanceID, err := s.findInstanceIDByStepInstance(ctx, req.StepInstanceID)
	if err != nil {
		return nil, err
	}
	resp := &DecisionResp{}
	err = s.opLock.NonBlockingSynchronized(ctx,
		instanceOpLockKey(instanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				sc, err := s.loadStepContext(ctx, req.StepInstanceID)
				if err != nil {
					return err
				}
				if err := checkActionable(sc, req.ActorID); err != nil {
					return err
				}
				decisions, err := s.repo.QueryDecision(ctx, &QueryDecisionParams{
					StepInstanceID: &sc.stepInstance.ID,
					Page:           noLimitPager(),
				})
				if err != nil {
					return errors.WithMessagef(err, "QueryDecision failed, stepInstanceID: %d", sc.stepInstance.ID)
				}
				for _, decision := range decisions {
					if decision.UserID == req.ActorID {
						// 一个审批人对一个步骤实例只能表态一次
						return errors.WithMessagef(ErrInvalidState, "actor already decided, stepInstanceID: %d, actorID: %d", sc.stepInstance.ID, req.ActorID)
					}
				}
				if _, err := s.repo.CreateDecision(ctx, &DecisionPo{
					StepInstanceID: sc.stepInstance.ID,
					UserID:         req.ActorID,
					Decision:       DecisionApprove,
				}); err != nil {
					return errors.WithMessagef(err, "CreateDecision failed, stepInstanceID: %d", sc.stepInstance.ID)
				}
				// approve流水每次都记,无论这一票有没有让步骤达到满足条件
				if _, err := s.repo.CreateActionLog(ctx, &ActionLogPo{
					InstanceID: sc.instance.ID,
					Action:     ActionApprove,
					FromStepID: &sc.step.ID,
					ActorID:    req.ActorID,
					Comment:    req.Comment,
				}); err != nil {
					return errors.WithMessagef(err, "CreateActionLog failed, instanceID: %d", sc.instance.ID)
				}

				satisfied := isQuorumReached(sc.step.ApprovalMode, sc.assignees, decisions, req.ActorID)
				resp.InstanceStatus = sc.instance.Status
				resp.StepStatus = sc.stepInstance.Status
				if !satisfied {
					// all模式还有人没表态,步骤保持pending
					return nil
				}

				if err := s.closeStepInstance(ctx, sc.stepInstance.ID, StepInstanceStatusApproved, req.ActorID, req.Comment); err != nil {
					return err
				}
				resp.StepStatus = StepInstanceStatusApproved

				if sc.step.IsTerminal {
					if err := s.finalizeInstance(ctx, sc.instance.ID, InstanceStatusApproved); err != nil {
						return err
					}
					resp.InstanceStatus = InstanceStatusApproved
					return nil
				}

				nextStep, err := nextStepAfter(sc.steps, sc.step)
				if err != nil {
					return err
				}
				nextStepInstance, err := s.openStepInstance(ctx, sc.instance, nextStep, &sc.step.ID)
				if err != nil {
					return errors.WithMessagef(err, "openStepInstance failed, instanceID: %d, stepKey: %s", sc.instance.ID, nextStep.StepKey)
				}
				if err := s.moveInstanceTo(ctx, sc.instance.ID, nextStep.ID); err != nil {
					return err
				}
				resp.InstanceStatus = InstanceStatusInProgress
				resp.NextStepInstanceID = &nextStepInstance.ID
				return nil
			})
		})
	if err != nil {
		return nil, errors.WithMessagef(err, "Approve failed, stepInstanceID: %d", req.StepInstanceID)
	}
	return resp, nil
}

func (s *ApprovalServiceImpl) Reject(ctx context.Context, req *RejectReq) (*DecisionResp, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "Reject failed, req: %v,err: %v", req, err)
	}
	instanceID, err := s.findInstanceIDByStepInstance(ctx, req.StepInstanceID)
	if err != nil {
		return nil, err
	}
	resp := &DecisionResp{}
	err = s.opLock.NonBlockingSynchronized(ctx,
		instanceOpLockKey(instanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				sc, err := s.loadStepContext(ctx, req.StepInstanceID)
				if err != nil {
					return err
				}
				if err := checkActionable(sc, req.ActorID); err != nil {
					return err
				}

				// 先算退回目标再落任何数据
				// 目标解析失败整个操作失败,pending的步骤实例保持原样
				isSendBack := false
				var targetStep *WorkflowStepPo
				if sc.step.CanSendBack {
					targetStep, err = resolveSendBackStep(sc.step, sc.steps, req.TargetStepID)
					if err != nil {
						return errors.WithMessagef(err, "resolveSendBackStep failed, stepInstanceID: %d", sc.stepInstance.ID)
					}
					if sc.step.RejectTargetType == RejectTargetSubmitter && targetStep.ID == sc.step.ID {
						// 第一步上退回提交人,没有更早的步骤,按终止驳回处理
						isSendBack = false
						targetStep = nil
					} else {
						isSendBack = true
					}
				}

				if _, err := s.repo.CreateDecision(ctx, &DecisionPo{
					StepInstanceID: sc.stepInstance.ID,
					UserID:         req.ActorID,
					Decision:       DecisionReject,
				}); err != nil {
					return errors.WithMessagef(err, "CreateDecision failed, stepInstanceID: %d", sc.stepInstance.ID)
				}
				if err := s.closeStepInstance(ctx, sc.stepInstance.ID, StepInstanceStatusRejected, req.ActorID, req.Comment); err != nil {
					return err
				}
				if _, err := s.repo.CreateActionLog(ctx, &ActionLogPo{
					InstanceID: sc.instance.ID,
					Action:     ActionReject,
					FromStepID: &sc.step.ID,
					ActorID:    req.ActorID,
					Comment:    req.Comment,
				}); err != nil {
					return errors.WithMessagef(err, "CreateActionLog failed, instanceID: %d", sc.instance.ID)
				}
				resp.StepStatus = StepInstanceStatusRejected

				if !isSendBack {
					if err := s.finalizeInstance(ctx, sc.instance.ID, InstanceStatusRejected); err != nil {
						return err
					}
					resp.InstanceStatus = InstanceStatusRejected
					return nil
				}

				// 退回是改道不是终止,实例保持in_progress
				targetStepInstance, err := s.openStepInstance(ctx, sc.instance, targetStep, &sc.step.ID)
				if err != nil {
					return errors.WithMessagef(err, "openStepInstance failed, instanceID: %d, stepKey: %s", sc.instance.ID, targetStep.StepKey)
				}
				if err := s.moveInstanceTo(ctx, sc.instance.ID, targetStep.ID); err != nil {
					return err
				}
				if _, err := s.repo.CreateActionLog(ctx, &ActionLogPo{
					InstanceID: sc.instance.ID,
					Action:     ActionSendBack,
					FromStepID: &sc.step.ID,
					ToStepID:   &targetStep.ID,
					ActorID:    req.ActorID,
				}); err != nil {
					return errors.WithMessagef(err, "CreateActionLog failed, instanceID: %d", sc.instance.ID)
				}
				resp.InstanceStatus = InstanceStatusInProgress
				resp.NextStepInstanceID = &targetStepInstance.ID
				return nil
			})
		})
	if err != nil {
		return nil, errors.WithMessagef(err, "Reject failed, stepInstanceID: %d", req.StepInstanceID)
	}
	return resp, nil
}

// stepContext 一次审批操作需要的全部读上下文
type stepContext struct {
	stepInstance *StepInstancePo
	instance     *InstancePo
	step         *WorkflowStepPo
	steps        []*WorkflowStepPo
	assignees    []int64
}

func (s *ApprovalServiceImpl) findInstanceIDByStepInstance(ctx context.Context, stepInstanceID int64) (int64, error) {
	stepInstances, err := s.repo.QueryStepInstance(ctx, &QueryStepInstanceParams{
		StepInstanceID: &stepInstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return 0, errors.WithMessagef(err, "QueryStepInstance failed, stepInstanceID: %d", stepInstanceID)
	}
	if len(stepInstances) == 0 {
		return 0, errors.WithMessagef(ErrStepInstanceNotFound, "stepInstanceID: %d", stepInstanceID)
	}
	return stepInstances[0].InstanceID, nil
}

func (s *ApprovalServiceImpl) loadStepContext(ctx context.Context, stepInstanceID int64) (*stepContext, error) {
	stepInstances, err := s.repo.QueryStepInstance(ctx, &QueryStepInstanceParams{
		StepInstanceID: &stepInstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryStepInstance failed, stepInstanceID: %d", stepInstanceID)
	}
	if len(stepInstances) == 0 {
		return nil, errors.WithMessagef(ErrStepInstanceNotFound, "stepInstanceID: %d", stepInstanceID)
	}
	stepInstance := stepInstances[0]

	instances, err := s.repo.QueryInstance(ctx, &QueryInstanceParams{
		InstanceID: &stepInstance.InstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryInstance failed, instanceID: %d", stepInstance.InstanceID)
	}
	if len(instances) == 0 {
		return nil, errors.WithMessagef(ErrInstanceNotFound, "instanceID: %d", stepInstance.InstanceID)
	}
	instance := instances[0]

	steps, err := s.loadOrderedSteps(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	var step *WorkflowStepPo
	for _, candidate := range steps {
		if candidate.ID == stepInstance.StepID {
			step = candidate
			break
		}
	}
	if step == nil {
		return nil, errors.WithMessagef(ErrStepNotFound, "stepID: %d", stepInstance.StepID)
	}
	return &stepContext{
		stepInstance: stepInstance,
		instance:     instance,
		step:         step,
		steps:        steps,
		assignees:    UnmarshalAssignees(stepInstance.AssignedTo),
	}, nil
}

func (s *ApprovalServiceImpl) loadOrderedSteps(ctx context.Context, workflowID int64) ([]*WorkflowStepPo, error) {
	steps, err := s.repo.QueryWorkflowStep(ctx, &QueryWorkflowStepParams{
		WorkflowID:          &workflowID,
		OrderbyStepOrderAsc: Bool(true),
		Page:                noLimitPager(),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowStep failed, workflowID: %d", workflowID)
	}
	return steps, nil
}

func checkActionable(sc *stepContext, actorID int64) error {
	if sc.stepInstance.Status != StepInstanceStatusPending {
		return errors.WithMessagef(ErrInvalidState, "step instance not pending, stepInstanceID: %d, status: %s", sc.stepInstance.ID, sc.stepInstance.Status)
	}
	if sc.instance.Status != InstanceStatusInProgress {
		return errors.WithMessagef(ErrInvalidState, "instance not in progress, instanceID: %d, status: %s", sc.instance.ID, sc.instance.Status)
	}
	if sc.instance.CurrentStepID == nil || *sc.instance.CurrentStepID != sc.step.ID {
		return errors.WithMessagef(ErrInvalidState, "step instance is not the current step, stepInstanceID: %d", sc.stepInstance.ID)
	}
	if !containsInt64(sc.assignees, actorID) {
		// 不泄露别人的分配信息,只给forbidden
		return errors.WithMessagef(ErrForbidden, "actorID: %d", actorID)
	}
	return nil
}

// isQuorumReached 本次表态落库之后步骤是否满足
// decisions是本次表态之前的台账,actorID是本次通过的人
func isQuorumReached(mode ApprovalMode, assignees []int64, decisions []*DecisionPo, actorID int64) bool {
	if mode == ApprovalModeAny {
		return true
	}
	approvedSet := make(map[int64]struct{})
	for _, decision := range decisions {
		if decision.Decision == DecisionApprove {
			approvedSet[decision.UserID] = struct{}{}
		}
	}
	approvedSet[actorID] = struct{}{}
	for _, assignee := range assignees {
		if _, ok := approvedSet[assignee]; !ok {
			return false
		}
	}
	return true
}

// openStepInstance 为目标步骤解析审批人快照并创建pending的步骤实例
// 每次进入一个步骤都新建实例,退回重走也是新建,历史全部留痕
func (s *ApprovalServiceImpl) openStepInstance(ctx context.Context, instance *InstancePo, step *WorkflowStepPo, previousStepID *int64) (*StepInstancePo, error) {
	rc := &ResolveContext{
		InstanceID:     instance.ID,
		WorkflowID:     instance.WorkflowID,
		SubmitterID:    instance.SubmitterID,
		RefType:        instance.RefType,
		RefID:          instance.RefID,
		PreviousStepID: previousStepID,
	}
	assignees, err := s.resolveApprovers(ctx, step, rc)
	if err != nil {
		return nil, err
	}
	if len(assignees) == 0 {
		// 合法但是需要运营关注,这个步骤在有人补上角色之前没人能审
		slog.WarnContext(ctx, fmt.Sprintf("approval step opened without assignees, instanceID: %d, stepKey: %s, approverValue: %s", instance.ID, step.StepKey, step.ApproverValue))
	}
	stepInstance, err := s.repo.CreateStepInstance(ctx, &StepInstancePo{
		InstanceID: instance.ID,
		StepID:     step.ID,
		Status:     StepInstanceStatusPending,
		AssignedTo: MarshalAssignees(assignees),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateStepInstance failed, instanceID: %d, stepKey: %s", instance.ID, step.StepKey)
	}
	return stepInstance, nil
}

// closeStepInstance 带状态守卫地关闭pending的步骤实例
// where里面带上pending,并发竞争输掉的一方在这里命中0行
func (s *ApprovalServiceImpl) closeStepInstance(ctx context.Context, stepInstanceID int64, status StepInstanceStatus, actorID int64, comment string) error {
	rows, err := s.repo.UpdateStepInstance(ctx, &UpdateStepInstanceParams{
		Where: &UpdateStepInstanceWhere{
			IDIn:     []int64{stepInstanceID},
			StatusIn: []string{StepInstanceStatusPending},
		},
		Fields: &UpdateStepInstanceField{
			Status:  &status,
			ActedBy: &actorID,
			ActedAt: Int64(time.Now().Unix()),
			Comment: &comment,
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateStepInstance failed, stepInstanceID: %d", stepInstanceID)
	}
	if rows != 1 {
		return errors.WithMessagef(ErrInvalidState, "step instance no longer pending, stepInstanceID: %d", stepInstanceID)
	}
	return nil
}

func (s *ApprovalServiceImpl) finalizeInstance(ctx context.Context, instanceID int64, status InstanceStatus) error {
	rows, err := s.repo.UpdateInstance(ctx, &UpdateInstanceParams{
		Where: &UpdateInstanceWhere{
			IDIn:     []int64{instanceID},
			StatusIn: []string{InstanceStatusInProgress},
		},
		Fields: &UpdateInstanceField{
			Status:             &status,
			IsClearCurrentStep: true,
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateInstance failed, instanceID: %d", instanceID)
	}
	if rows != 1 {
		return errors.WithMessagef(ErrInvalidState, "instance no longer in progress, instanceID: %d", instanceID)
	}
	return nil
}

func (s *ApprovalServiceImpl) moveInstanceTo(ctx context.Context, instanceID int64, stepID int64) error {
	rows, err := s.repo.UpdateInstance(ctx, &UpdateInstanceParams{
		Where: &UpdateInstanceWhere{
			IDIn:     []int64{instanceID},
			StatusIn: []string{InstanceStatusInProgress},
		},
		Fields: &UpdateInstanceField{
			CurrentStepID: &stepID,
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateInstance failed, instanceID: %d", instanceID)
	}
	if rows != 1 {
		return errors.WithMessagef(ErrInvalidState, "instance no longer in progress, instanceID: %d", instanceID)
	}
	return nil
}

func nextStepAfter(steps []*WorkflowStepPo, current *WorkflowStepPo) (*WorkflowStepPo, error) {
	ordered := sortStepsByOrder(steps)
	for i, step := range ordered {
		if step.ID == current.ID {
			if i+1 >= len(ordered) {
				// 非终止步骤后面一定还有步骤,走到这里说明定义坏了
				return nil, errors.WithMessagef(ErrInvalidStepLayout, "no step after non-terminal step, stepKey: %s", current.StepKey)
			}
			return ordered[i+1], nil
		}
	}
	return nil, errors.WithMessagef(ErrStepNotFound, "stepID: %d", current.ID)
}
