package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type CreateWorkflowStepReq struct {
	StepKey          string `json:"step_key" validate:"required"`
	Name             string `json:"name" validate:"required"`
	ApproverStrategy string `json:"approver_strategy" validate:"required,oneof=user role dynamic"`
	ApproverValue    string `json:"approver_value" validate:"required"`
	ApprovalMode     string `json:"approval_mode" validate:"required,oneof=any all"`
	CanSendBack      bool   `json:"can_send_back"`
	RejectTargetType string `json:"reject_target_type" validate:"required,oneof=previous submitter specific runtime"`
	// specific类型时引用同一个定义里面的step_key,入库之后转成步骤ID
	RejectTargetStepKey *string `json:"reject_target_step_key"`
}

type CreateWorkflowReq struct {
	Code        string                   `json:"code" validate:"required"`
	Name        string                   `json:"name" validate:"required"`
	Description string                   `json:"description"`
	CreatedBy   int64                    `json:"created_by" validate:"gt=0"`
	Steps       []*CreateWorkflowStepReq `json:"steps" validate:"required,min=1,dive,required"`
}

type WorkflowEntity struct {
	ID          int64             `json:"id"`
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     int64             `json:"version"`
	IsActive    bool              `json:"is_active"`
	CreatedBy   int64             `json:"created_by"`
	Steps       []*WorkflowStepPo `json:"steps"`
}

type CreateNewVersionReq struct {
	SourceWorkflowID int64 `json:"source_workflow_id" validate:"gt=0"`
	CreatedBy        int64 `json:"created_by" validate:"gt=0"`
}

type CreateNewVersionResp struct {
	WorkflowID int64 `json:"workflow_id"`
	Version    int64 `json:"version"`
	// 克隆导致specific退回目标被置空的步骤key,需要提示设计者重新配置
	ResetSendBackStepKeys []string `json:"reset_send_back_step_keys"`
}

func (s *ApprovalServiceImpl) CreateWorkflow(ctx context.Context, req *CreateWorkflowReq) (*WorkflowEntity, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "CreateWorkflow failed, req: %v,err: %v", req, err)
	}
	if err := checkStepLayout(req.Steps); err != nil {
		return nil, errors.WithMessagef(err, "CreateWorkflow failed, code: %s", req.Code)
	}
	var entity *WorkflowEntity
	err := s.opLock.NonBlockingSynchronized(ctx,
		workflowCodeLockKey(req.Code),
		1*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				version, err := s.nextVersionForCode(ctx, req.Code)
				if err != nil {
					return err
				}
				workflow, err := s.repo.CreateWorkflow(ctx, &WorkflowPo{
					Code:        req.Code,
					Name:        req.Name,
					Description: req.Description,
					Version:     version,
					IsActive:    false,
					CreatedBy:   req.CreatedBy,
				})
				if err != nil {
					return errors.WithMessagef(err, "CreateWorkflow failed, code: %s", req.Code)
				}

				stepIDByKey := make(map[string]int64)
				stepPos := make([]*WorkflowStepPo, 0, len(req.Steps))
				for i, stepReq := range req.Steps {
					stepPo, err := s.repo.CreateWorkflowStep(ctx, &WorkflowStepPo{
						WorkflowID:       workflow.ID,
						StepKey:          stepReq.StepKey,
						StepOrder:        int64(i + 1),
						Name:             stepReq.Name,
						ApproverStrategy: stepReq.ApproverStrategy,
						ApproverValue:    stepReq.ApproverValue,
						ApprovalMode:     stepReq.ApprovalMode,
						CanSendBack:      stepReq.CanSendBack,
						RejectTargetType: stepReq.RejectTargetType,
						// 最后一步是终止步骤,终止步骤审批满足整个实例通过
						IsTerminal: i == len(req.Steps)-1,
					})
					if err != nil {
						return errors.WithMessagef(err, "CreateWorkflowStep failed, stepKey: %s", stepReq.StepKey)
					}
					stepIDByKey[stepReq.StepKey] = stepPo.ID
					stepPos = append(stepPos, stepPo)
				}
				// specific目标的key在全部步骤入库之后才解析得到ID,二次回写
				for i, stepReq := range req.Steps {
					if stepReq.RejectTargetType != RejectTargetSpecific {
						continue
					}
					targetID := stepIDByKey[*stepReq.RejectTargetStepKey]
					if err := s.repo.UpdateWorkflowStep(ctx, &UpdateWorkflowStepParams{
						Where: &UpdateWorkflowStepWhere{
							IDIn: []int64{stepPos[i].ID},
						},
						Fields: &UpdateWorkflowStepField{
							RejectTargetStepID: &targetID,
						},
						LimitMax: 1,
					}); err != nil {
						return errors.WithMessagef(err, "UpdateWorkflowStep failed, stepKey: %s", stepReq.StepKey)
					}
					stepPos[i].RejectTargetStepID = &targetID
				}
				entity = &WorkflowEntity{
					ID:          workflow.ID,
					Code:        workflow.Code,
					Name:        workflow.Name,
					Description: workflow.Description,
					Version:     workflow.Version,
					IsActive:    workflow.IsActive,
					CreatedBy:   workflow.CreatedBy,
					Steps:       stepPos,
				}
				return nil
			})
		})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateWorkflow failed, code: %s", req.Code)
	}
	return entity, nil
}

// checkStepLayout 创建时就把步骤结构性问题挡掉,不留到运行时
func checkStepLayout(steps []*CreateWorkflowStepReq) error {
	seenKeys := make(map[string]struct{})
	for _, step := range steps {
		if _, ok := seenKeys[step.StepKey]; ok {
			return errors.WithMessagef(ErrInvalidStepLayout, "duplicate step key: %s", step.StepKey)
		}
		seenKeys[step.StepKey] = struct{}{}
	}
	for _, step := range steps {
		if step.RejectTargetType != RejectTargetSpecific {
			continue
		}
		if step.RejectTargetStepKey == nil || strings.TrimSpace(*step.RejectTargetStepKey) == "" {
			return errors.WithMessagef(ErrMissingRejectTarget, "stepKey: %s", step.StepKey)
		}
		if _, ok := seenKeys[*step.RejectTargetStepKey]; !ok {
			return errors.WithMessagef(ErrRejectTargetNotFound, "stepKey: %s, targetStepKey: %s", step.StepKey, *step.RejectTargetStepKey)
		}
	}
	return nil
}

func (s *ApprovalServiceImpl) CreateNewVersion(ctx context.Context, req *CreateNewVersionReq) (*CreateNewVersionResp, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrParamInvalid, "CreateNewVersion failed, req: %v,err: %v", req, err)
	}
	source, err := s.findWorkflowByID(ctx, req.SourceWorkflowID)
	if err != nil {
		return nil, err
	}
	resp := &CreateNewVersionResp{
		ResetSendBackStepKeys: make([]string, 0),
	}
	err = s.opLock.NonBlockingSynchronized(ctx,
		workflowCodeLockKey(source.Code),
		1*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				version, err := s.nextVersionForCode(ctx, source.Code)
				if err != nil {
					return err
				}
				newWorkflow, err := s.repo.CreateWorkflow(ctx, &WorkflowPo{
					Code:        source.Code,
					Name:        source.Name,
					Description: source.Description,
					Version:     version,
					IsActive:    false,
					CreatedBy:   req.CreatedBy,
				})
				if err != nil {
					return errors.WithMessagef(err, "CreateWorkflow failed, code: %s", source.Code)
				}
				steps, err := s.loadOrderedSteps(ctx, source.ID)
				if err != nil {
					return err
				}
				for _, step := range steps {
					// 克隆出来的步骤拿到新ID,specific的退回目标指向的是旧ID,置空而不是猜着重连
					if step.RejectTargetType == RejectTargetSpecific {
						resp.ResetSendBackStepKeys = append(resp.ResetSendBackStepKeys, step.StepKey)
					}
					if _, err := s.repo.CreateWorkflowStep(ctx, &WorkflowStepPo{
						WorkflowID:         newWorkflow.ID,
						StepKey:            step.StepKey,
						StepOrder:          step.StepOrder,
						Name:               step.Name,
						ApproverStrategy:   step.ApproverStrategy,
						ApproverValue:      step.ApproverValue,
						ApprovalMode:       step.ApprovalMode,
						CanSendBack:        step.CanSendBack,
						RejectTargetType:   step.RejectTargetType,
						RejectTargetStepID: nil,
						IsTerminal:         step.IsTerminal,
					}); err != nil {
						return errors.WithMessagef(err, "CreateWorkflowStep failed, stepKey: %s", step.StepKey)
					}
				}
				resp.WorkflowID = newWorkflow.ID
				resp.Version = newWorkflow.Version
				return nil
			})
		})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateNewVersion failed, sourceWorkflowID: %d", req.SourceWorkflowID)
	}
	if len(resp.ResetSendBackStepKeys) > 0 {
		// 退回配置丢了,需要设计者在新版本上重新指定目标步骤
		slog.WarnContext(ctx, fmt.Sprintf("CreateNewVersion reset specific send-back targets, workflowID: %d, stepKeys: %v", resp.WorkflowID, resp.ResetSendBackStepKeys))
	}
	return resp, nil
}

func (s *ApprovalServiceImpl) ActivateVersion(ctx context.Context, workflowID int64) error {
	if workflowID <= 0 {
		return errors.Wrapf(ErrParamInvalid, "ActivateVersion failed, workflowID: %d", workflowID)
	}
	workflow, err := s.findWorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}
	err = s.opLock.NonBlockingSynchronized(ctx,
		workflowCodeLockKey(workflow.Code),
		1*time.Minute,
		func(ctx context.Context) error {
			// 同一个事务里面先全部取消激活再激活目标,提交之后同code只剩一个激活版本
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				versions, err := s.repo.QueryWorkflow(ctx, &QueryWorkflowParams{
					Code: &workflow.Code,
					Page: noLimitPager(),
				})
				if err != nil {
					return errors.WithMessagef(err, "QueryWorkflow failed, code: %s", workflow.Code)
				}
				if err := s.repo.UpdateWorkflow(ctx, &UpdateWorkflowParams{
					Where: &UpdateWorkflowWhere{
						CodeIn: []string{workflow.Code},
					},
					Fields: &UpdateWorkflowField{
						IsActive: Bool(false),
					},
					LimitMax: len(versions),
				}); err != nil {
					return errors.WithMessagef(err, "UpdateWorkflow failed, code: %s", workflow.Code)
				}
				if err := s.repo.UpdateWorkflow(ctx, &UpdateWorkflowParams{
					Where: &UpdateWorkflowWhere{
						IDIn: []int64{workflowID},
					},
					Fields: &UpdateWorkflowField{
						IsActive: Bool(true),
					},
					LimitMax: 1,
				}); err != nil {
					return errors.WithMessagef(err, "UpdateWorkflow failed, workflowID: %d", workflowID)
				}
				return nil
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "ActivateVersion failed, workflowID: %d", workflowID)
	}
	return nil
}

func (s *ApprovalServiceImpl) DeactivateVersion(ctx context.Context, workflowID int64) error {
	if workflowID <= 0 {
		return errors.Wrapf(ErrParamInvalid, "DeactivateVersion failed, workflowID: %d", workflowID)
	}
	workflow, err := s.findWorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}
	err = s.opLock.NonBlockingSynchronized(ctx,
		workflowCodeLockKey(workflow.Code),
		1*time.Minute,
		func(ctx context.Context) error {
			// 只影响这一个版本
			if err := s.repo.UpdateWorkflow(ctx, &UpdateWorkflowParams{
				Where: &UpdateWorkflowWhere{
					IDIn: []int64{workflowID},
				},
				Fields: &UpdateWorkflowField{
					IsActive: Bool(false),
				},
				LimitMax: 1,
			}); err != nil {
				return errors.WithMessagef(err, "UpdateWorkflow failed, workflowID: %d", workflowID)
			}
			return nil
		})
	if err != nil {
		return errors.WithMessagef(err, "DeactivateVersion failed, workflowID: %d", workflowID)
	}
	return nil
}

func (s *ApprovalServiceImpl) findWorkflowByID(ctx context.Context, workflowID int64) (*WorkflowPo, error) {
	workflows, err := s.repo.QueryWorkflow(ctx, &QueryWorkflowParams{
		WorkflowID: &workflowID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflow failed, workflowID: %d", workflowID)
	}
	if len(workflows) == 0 {
		return nil, errors.WithMessagef(ErrWorkflowNotFound, "workflowID: %d", workflowID)
	}
	return workflows[0], nil
}

func (s *ApprovalServiceImpl) nextVersionForCode(ctx context.Context, code string) (int64, error) {
	latest, err := s.repo.QueryWorkflow(ctx, &QueryWorkflowParams{
		Code:               &code,
		OrderbyVersionDesc: Bool(true),
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return 0, errors.WithMessagef(err, "QueryWorkflow failed, code: %s", code)
	}
	if len(latest) == 0 {
		return 1, nil
	}
	return latest[0].Version + 1, nil
}

type InstanceDetailEntity struct {
	ID            int64                 `json:"id"`
	WorkflowID    int64                 `json:"workflow_id"`
	WorkflowCode  string                `json:"workflow_code"`
	WorkflowName  string                `json:"workflow_name"`
	RefType       string                `json:"ref_type"`
	RefID         string                `json:"ref_id"`
	Status        InstanceStatus        `json:"status"`
	StatusText    string                `json:"status_text"`
	CurrentStepID *int64                `json:"current_step_id"`
	SubmitterID   int64                 `json:"submitter_id"`
	CreatedAt     int64                 `json:"created_at"`
	UpdatedAt     int64                 `json:"updated_at"`
	StepInstances []*StepInstanceEntity `json:"step_instances"`
	ActionLogs    []*ActionLogEntity    `json:"action_logs"`
}

type StepInstanceEntity struct {
	ID         int64              `json:"id"`
	StepID     int64              `json:"step_id"`
	StepKey    string             `json:"step_key"`
	StepName   string             `json:"step_name"`
	StepOrder  int64              `json:"step_order"`
	Status     StepInstanceStatus `json:"status"`
	StatusText string             `json:"status_text"`
	AssignedTo []int64            `json:"assigned_to"`
	ActedBy    *int64             `json:"acted_by"`
	ActedAt    *int64             `json:"acted_at"`
	Comment    string             `json:"comment"`
	CreatedAt  int64              `json:"created_at"`
}

type ActionLogEntity struct {
	ID         int64      `json:"id"`
	Action     ActionType `json:"action"`
	FromStepID *int64     `json:"from_step_id"`
	ToStepID   *int64     `json:"to_step_id"`
	ActorID    int64      `json:"actor_id"`
	Comment    string     `json:"comment"`
	CreatedAt  int64      `json:"created_at"`
}

func (s *ApprovalServiceImpl) QueryInstanceDetail(ctx context.Context, instanceID int64) (*InstanceDetailEntity, error) {
	if instanceID <= 0 {
		return nil, errors.Wrapf(ErrParamInvalid, "QueryInstanceDetail failed, instanceID: %d", instanceID)
	}
	instances, err := s.repo.QueryInstance(ctx, &QueryInstanceParams{
		InstanceID: &instanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryInstance failed, instanceID: %d", instanceID)
	}
	if len(instances) == 0 {
		return nil, errors.WithMessagef(ErrInstanceNotFound, "instanceID: %d", instanceID)
	}
	instance := instances[0]

	workflow, err := s.findWorkflowByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	steps, err := s.loadOrderedSteps(ctx, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	stepMap := make(map[int64]*WorkflowStepPo)
	for _, step := range steps {
		stepMap[step.ID] = step
	}

	stepInstances, err := s.repo.QueryStepInstance(ctx, &QueryStepInstanceParams{
		InstanceID:   &instance.ID,
		OrderbyIDAsc: Bool(true),
		Page:         noLimitPager(),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryStepInstance failed, instanceID: %d", instance.ID)
	}
	actionLogs, err := s.repo.QueryActionLog(ctx, &QueryActionLogParams{
		InstanceID:   &instance.ID,
		OrderbyIDAsc: Bool(true),
		Page:         noLimitPager(),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryActionLog failed, instanceID: %d", instance.ID)
	}

	ret := &InstanceDetailEntity{
		ID:            instance.ID,
		WorkflowID:    instance.WorkflowID,
		WorkflowCode:  workflow.Code,
		WorkflowName:  workflow.Name,
		RefType:       instance.RefType,
		RefID:         instance.RefID,
		Status:        instance.Status,
		StatusText:    GetInstanceStatusText(instance.Status),
		CurrentStepID: instance.CurrentStepID,
		SubmitterID:   instance.SubmitterID,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
		StepInstances: make([]*StepInstanceEntity, 0, len(stepInstances)),
		ActionLogs:    make([]*ActionLogEntity, 0, len(actionLogs)),
	}
	for _, stepInstance := range stepInstances {
		entity := &StepInstanceEntity{
			ID:         stepInstance.ID,
			StepID:     stepInstance.StepID,
			Status:     stepInstance.Status,
			StatusText: GetStepInstanceStatusText(stepInstance.Status),
			AssignedTo: UnmarshalAssignees(stepInstance.AssignedTo),
			ActedBy:    stepInstance.ActedBy,
			ActedAt:    stepInstance.ActedAt,
			Comment:    stepInstance.Comment,
			CreatedAt:  stepInstance.CreatedAt,
		}
		if step, ok := stepMap[stepInstance.StepID]; ok {
			entity.StepKey = step.StepKey
			entity.StepName = step.Name
			entity.StepOrder = step.StepOrder
		}
		ret.StepInstances = append(ret.StepInstances, entity)
	}
	for _, actionLog := range actionLogs {
		ret.ActionLogs = append(ret.ActionLogs, &ActionLogEntity{
			ID:         actionLog.ID,
			Action:     actionLog.Action,
			FromStepID: actionLog.FromStepID,
			ToStepID:   actionLog.ToStepID,
			ActorID:    actionLog.ActorID,
			Comment:    actionLog.Comment,
			CreatedAt:  actionLog.CreatedAt,
		})
	}
	return ret, nil
}
