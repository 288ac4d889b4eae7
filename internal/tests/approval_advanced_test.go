package tests

import (
	"context"
	"testing"

	"github.com/blingmoon/approval-flow/approval"
	"github.com/blingmoon/approval-flow/internal/commonregister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createThreeStepWorkflow 三步流程: 主管(user 100) -> 总监(user 101, 可退回上一步) -> 财务(role FINANCE, all, 终止步骤)
func createThreeStepWorkflow(t *testing.T, ctx context.Context, service approval.ApprovalService) *approval.WorkflowEntity {
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "budget_review",
		Name:      "预算评审",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "100",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
			{
				StepKey:          "director",
				Name:             "总监审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "101",
				ApprovalMode:     approval.ApprovalModeAny,
				CanSendBack:      true,
				RejectTargetType: approval.RejectTargetPrevious,
			},
			{
				StepKey:          "finance",
				Name:             "财务会签",
				ApproverStrategy: approval.ApproverStrategyRole,
				ApproverValue:    "FINANCE",
				ApprovalMode:     approval.ApprovalModeAll,
				CanSendBack:      true,
				RejectTargetType: approval.RejectTargetPrevious,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))
	return workflow
}

// TestSendBackPrevious 总监退回上一步之后主管重新审批
func TestSendBackPrevious(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 101, "DIRECTOR")
	seedRole(t, db, 201, "FINANCE")
	createThreeStepWorkflow(t, ctx, service)

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "budget_review",
		RefType:      "budget",
		RefID:        "B-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	require.NoError(t, err)
	directorStepInstanceID := *resp.NextStepInstanceID

	resp, err = service.Reject(ctx, &approval.RejectReq{
		StepInstanceID: directorStepInstanceID,
		ActorID:        101,
		Comment:        "预算明细不够,退回补充",
	})
	require.NoError(t, err)
	// 退回是改道不是终止
	assert.Equal(t, approval.InstanceStatusInProgress, resp.InstanceStatus)
	assert.Equal(t, approval.StepInstanceStatusRejected, resp.StepStatus)
	require.NotNil(t, resp.NextStepInstanceID)
	reopenedStepInstanceID := *resp.NextStepInstanceID

	detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusInProgress, detail.Status)
	require.Len(t, detail.StepInstances, 3)
	assert.Equal(t, "manager", detail.StepInstances[0].StepKey)
	assert.Equal(t, approval.StepInstanceStatusApproved, detail.StepInstances[0].Status)
	assert.Equal(t, "director", detail.StepInstances[1].StepKey)
	assert.Equal(t, approval.StepInstanceStatusRejected, detail.StepInstances[1].Status)
	// 退回之后是新建的步骤实例,不是复用老的
	assert.Equal(t, "manager", detail.StepInstances[2].StepKey)
	assert.Equal(t, approval.StepInstanceStatusPending, detail.StepInstances[2].Status)
	assert.Equal(t, detail.StepInstances[0].StepID, *detail.CurrentStepID)

	// 流水里面有reject和send_back两条,send_back带目标步骤
	lastLog := detail.ActionLogs[len(detail.ActionLogs)-1]
	assert.Equal(t, approval.ActionSendBack, lastLog.Action)
	require.NotNil(t, lastLog.ToStepID)
	assert.Equal(t, detail.StepInstances[0].StepID, *lastLog.ToStepID)

	t.Run("退回之后可以重走", func(t *testing.T) {
		resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: reopenedStepInstanceID, ActorID: 100})
		require.NoError(t, err)
		assert.Equal(t, approval.InstanceStatusInProgress, resp.InstanceStatus)
		require.NotNil(t, resp.NextStepInstanceID)
	})
}

// TestRejectWithoutSendBack 步骤不允许退回时驳回直接终止
func TestRejectWithoutSendBack(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 101, "DIRECTOR")
	createThreeStepWorkflow(t, ctx, service)

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "budget_review",
		RefType:      "budget",
		RefID:        "B-002",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	// manager步骤can_send_back=false,驳回终止
	resp, err := service.Reject(ctx, &approval.RejectReq{
		StepInstanceID: started.StepInstanceID,
		ActorID:        100,
		Comment:        "不同意",
	})
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusRejected, resp.InstanceStatus)
	assert.Nil(t, resp.NextStepInstanceID)

	detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusRejected, detail.Status)
	assert.Nil(t, detail.CurrentStepID)
}

// TestRejectSubmitterAtFirstStep 第一步上退回提交人按终止处理
func TestRejectSubmitterAtFirstStep(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "leave_request",
		Name:      "请假审批",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "100",
				ApprovalMode:     approval.ApprovalModeAny,
				CanSendBack:      true,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "leave_request",
		RefType:      "leave",
		RefID:        "L-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	resp, err := service.Reject(ctx, &approval.RejectReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusRejected, resp.InstanceStatus)
	assert.Nil(t, resp.NextStepInstanceID)
}

// TestRejectPreviousAtFirstStep 第一步上previous没有去处,整个操作失败且状态不动
func TestRejectPreviousAtFirstStep(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "leave_request",
		Name:      "请假审批",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "100",
				ApprovalMode:     approval.ApprovalModeAny,
				CanSendBack:      true,
				RejectTargetType: approval.RejectTargetPrevious,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "leave_request",
		RefType:      "leave",
		RefID:        "L-002",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	_, err = service.Reject(ctx, &approval.RejectReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	assert.ErrorIs(t, err, approval.ErrNoPreviousStep)

	// 失败的驳回什么都不落,pending保持原样
	detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusInProgress, detail.Status)
	require.Len(t, detail.StepInstances, 1)
	assert.Equal(t, approval.StepInstanceStatusPending, detail.StepInstances[0].Status)
	require.Len(t, detail.ActionLogs, 1)
	assert.Equal(t, approval.ActionSubmit, detail.ActionLogs[0].Action)
}

// createSpecificTargetWorkflow 两步流程,终审步骤specific退回到manager
func createSpecificTargetWorkflow(t *testing.T, ctx context.Context, service approval.ApprovalService) *approval.WorkflowEntity {
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "contract_review",
		Name:      "合同评审",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "100",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
			{
				StepKey:             "legal",
				Name:                "法务终审",
				ApproverStrategy:    approval.ApproverStrategyUser,
				ApproverValue:       "300",
				ApprovalMode:        approval.ApprovalModeAny,
				CanSendBack:         true,
				RejectTargetType:    approval.RejectTargetSpecific,
				RejectTargetStepKey: approval.String("manager"),
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))
	return workflow
}

// TestRejectSpecificTarget specific退回到定义里面指定的步骤
func TestRejectSpecificTarget(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 300, "LEGAL")
	workflow := createSpecificTargetWorkflow(t, ctx, service)

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "contract_review",
		RefType:      "contract",
		RefID:        "C-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	require.NoError(t, err)
	legalStepInstanceID := *resp.NextStepInstanceID

	t.Run("退回到指定步骤", func(t *testing.T) {
		resp, err := service.Reject(ctx, &approval.RejectReq{StepInstanceID: legalStepInstanceID, ActorID: 300})
		require.NoError(t, err)
		assert.Equal(t, approval.InstanceStatusInProgress, resp.InstanceStatus)
		require.NotNil(t, resp.NextStepInstanceID)

		detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, "manager", detail.StepInstances[len(detail.StepInstances)-1].StepKey)
	})

	t.Run("specific目标被置空时驳回失败且状态不动", func(t *testing.T) {
		// 重走回到legal
		detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		reopened := detail.StepInstances[len(detail.StepInstances)-1]
		resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: reopened.ID, ActorID: 100})
		require.NoError(t, err)
		legalAgainID := *resp.NextStepInstanceID

		// 模拟克隆之后specific目标丢失的定义
		var legalStep approval.WorkflowStepPo
		require.NoError(t, db.Where("workflow_id = ? AND step_key = ?", workflow.ID, "legal").First(&legalStep).Error)
		require.NoError(t, db.Model(&approval.WorkflowStepPo{}).Where("id = ?", legalStep.ID).Update("reject_target_step_id", nil).Error)

		_, err = service.Reject(ctx, &approval.RejectReq{StepInstanceID: legalAgainID, ActorID: 300})
		assert.ErrorIs(t, err, approval.ErrMissingRejectTarget)

		after, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, approval.InstanceStatusInProgress, after.Status)
		assert.Equal(t, approval.StepInstanceStatusPending, after.StepInstances[len(after.StepInstances)-1].Status)
	})
}

// TestRejectRuntimeTarget runtime退回目标由审批人驳回时指定
func TestRejectRuntimeTarget(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 101, "DIRECTOR")
	seedRole(t, db, 300, "LEGAL")
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "payment_review",
		Name:      "付款评审",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "100",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
			{
				StepKey:          "director",
				Name:             "总监审批",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "101",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
			{
				StepKey:          "legal",
				Name:             "法务终审",
				ApproverStrategy: approval.ApproverStrategyUser,
				ApproverValue:    "300",
				ApprovalMode:     approval.ApprovalModeAny,
				CanSendBack:      true,
				RejectTargetType: approval.RejectTargetRuntime,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "payment_review",
		RefType:      "payment",
		RefID:        "PAY-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)
	resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	require.NoError(t, err)
	resp, err = service.Approve(ctx, &approval.ApproveReq{StepInstanceID: *resp.NextStepInstanceID, ActorID: 101})
	require.NoError(t, err)
	legalStepInstanceID := *resp.NextStepInstanceID

	t.Run("不带目标驳回报错", func(t *testing.T) {
		_, err := service.Reject(ctx, &approval.RejectReq{StepInstanceID: legalStepInstanceID, ActorID: 300})
		assert.ErrorIs(t, err, approval.ErrRuntimeTargetRequired)
	})

	t.Run("目标不在本定义里面报错", func(t *testing.T) {
		_, err := service.Reject(ctx, &approval.RejectReq{
			StepInstanceID: legalStepInstanceID,
			ActorID:        300,
			TargetStepID:   approval.Int64(99999),
		})
		assert.ErrorIs(t, err, approval.ErrRejectTargetNotFound)
	})

	t.Run("带合法目标退回", func(t *testing.T) {
		detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		managerStepID := detail.StepInstances[0].StepID

		resp, err := service.Reject(ctx, &approval.RejectReq{
			StepInstanceID: legalStepInstanceID,
			ActorID:        300,
			TargetStepID:   &managerStepID,
		})
		require.NoError(t, err)
		assert.Equal(t, approval.InstanceStatusInProgress, resp.InstanceStatus)

		after, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, managerStepID, *after.CurrentStepID)
	})
}

// TestCreateNewVersion 克隆新版本,specific退回目标置空并提示
func TestCreateNewVersion(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 300, "LEGAL")
	workflow := createSpecificTargetWorkflow(t, ctx, service)

	resp, err := service.CreateNewVersion(ctx, &approval.CreateNewVersionReq{
		SourceWorkflowID: workflow.ID,
		CreatedBy:        2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Version)
	assert.Equal(t, []string{"legal"}, resp.ResetSendBackStepKeys)

	var clonedSteps []*approval.WorkflowStepPo
	require.NoError(t, db.Where("workflow_id = ?", resp.WorkflowID).Order("step_order asc").Find(&clonedSteps).Error)
	require.Len(t, clonedSteps, 2)
	assert.Equal(t, "manager", clonedSteps[0].StepKey)
	assert.Equal(t, "legal", clonedSteps[1].StepKey)
	// 克隆之后specific目标不能指向旧版本的步骤ID
	assert.Nil(t, clonedSteps[1].RejectTargetStepID)
	assert.Equal(t, approval.RejectTargetSpecific, clonedSteps[1].RejectTargetType)

	t.Run("新版本默认不激活", func(t *testing.T) {
		var cloned approval.WorkflowPo
		require.NoError(t, db.Where("id = ?", resp.WorkflowID).First(&cloned).Error)
		assert.False(t, cloned.IsActive)
	})

	t.Run("源版本不存在报错", func(t *testing.T) {
		_, err := service.CreateNewVersion(ctx, &approval.CreateNewVersionReq{
			SourceWorkflowID: 99999,
			CreatedBy:        2,
		})
		assert.ErrorIs(t, err, approval.ErrWorkflowNotFound)
	})
}

// TestVersionActivation 激活唯一性和实例钉住版本
func TestVersionActivation(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	seedRole(t, db, 201, "FINANCE")
	seedRole(t, db, 202, "FINANCE")
	v1 := createProposalWorkflow(t, ctx, service)

	resp, err := service.CreateNewVersion(ctx, &approval.CreateNewVersionReq{
		SourceWorkflowID: v1.ID,
		CreatedBy:        1,
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, resp.WorkflowID))

	t.Run("同code只有一个激活版本", func(t *testing.T) {
		var activeCount int64
		require.NoError(t, db.Model(&approval.WorkflowPo{}).
			Where("code = ? AND is_active = ?", "project_proposal", true).Count(&activeCount).Error)
		assert.Equal(t, int64(1), activeCount)

		var active approval.WorkflowPo
		require.NoError(t, db.Where("code = ? AND is_active = ?", "project_proposal", true).First(&active).Error)
		assert.Equal(t, resp.WorkflowID, active.ID)
	})

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "project_proposal",
		RefType:      "project_proposal",
		RefID:        "P-010",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	t.Run("实例钉在发起时的激活版本上", func(t *testing.T) {
		detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, resp.WorkflowID, detail.WorkflowID)

		// 切回v1不影响在途实例
		require.NoError(t, service.ActivateVersion(ctx, v1.ID))
		_, err = service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
		require.NoError(t, err)
		after, err := service.QueryInstanceDetail(ctx, started.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, resp.WorkflowID, after.WorkflowID)
	})
}

// TestEmptyRoleStep 角色下没有人,步骤照样创建但是没人能审
func TestEmptyRoleStep(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "ghost_review",
		Name:      "没人审的流程",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "ghost",
				Name:             "空角色步骤",
				ApproverStrategy: approval.ApproverStrategyRole,
				ApproverValue:    "GHOST",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "ghost_review",
		RefType:      "ghost",
		RefID:        "G-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Empty(t, detail.StepInstances[0].AssignedTo)
	assert.Equal(t, approval.StepInstanceStatusPending, detail.StepInstances[0].Status)

	_, err = service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	assert.ErrorIs(t, err, approval.ErrForbidden)
}

// TestDynamicResolverFlow 动态解析器按提交人解析主管
func TestDynamicResolverFlow(t *testing.T) {
	registry := approval.NewDynamicResolverRegistry()
	require.NoError(t, commonregister.RegisterCommonResolvers(registry, commonregister.MapManagerLookup{
		9: {100},
	}))
	service, db := setupTestServiceWithRegistry(t, registry)
	ctx := context.Background()
	seedRole(t, db, 100, "MANAGER")
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "expense_review",
		Name:      "报销审批",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "manager",
				Name:             "主管审批",
				ApproverStrategy: approval.ApproverStrategyDynamic,
				ApproverValue:    "submitter_manager",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	started, err := service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "expense_review",
		RefType:      "expense",
		RefID:        "E-001",
		SubmitterID:  9,
	})
	require.NoError(t, err)

	detail, err := service.QueryInstanceDetail(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, detail.StepInstances[0].AssignedTo)

	resp, err := service.Approve(ctx, &approval.ApproveReq{StepInstanceID: started.StepInstanceID, ActorID: 100})
	require.NoError(t, err)
	assert.Equal(t, approval.InstanceStatusApproved, resp.InstanceStatus)
}

// TestDynamicResolverUnknownKey 未注册的解析器key,发起失败且不留半个实例
func TestDynamicResolverUnknownKey(t *testing.T) {
	service, db := setupTestService(t)
	ctx := context.Background()
	workflow, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
		Code:      "broken_review",
		Name:      "配错的流程",
		CreatedBy: 1,
		Steps: []*approval.CreateWorkflowStepReq{
			{
				StepKey:          "mystery",
				Name:             "神秘步骤",
				ApproverStrategy: approval.ApproverStrategyDynamic,
				ApproverValue:    "no_such_resolver",
				ApprovalMode:     approval.ApprovalModeAny,
				RejectTargetType: approval.RejectTargetSubmitter,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateVersion(ctx, workflow.ID))

	_, err = service.StartWorkflow(ctx, &approval.StartWorkflowReq{
		WorkflowCode: "broken_review",
		RefType:      "x",
		RefID:        "X-001",
		SubmitterID:  9,
	})
	assert.ErrorIs(t, err, approval.ErrUnknownResolver)
	assert.True(t, approval.IsConfigError(err))

	// 事务回滚,没有残留的实例
	var instanceCount int64
	require.NoError(t, db.Model(&approval.InstancePo{}).Count(&instanceCount).Error)
	assert.Equal(t, int64(0), instanceCount)
}

// TestCreateWorkflowLayoutErrors 创建定义时的结构校验
func TestCreateWorkflowLayoutErrors(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	baseStep := func(key string) *approval.CreateWorkflowStepReq {
		return &approval.CreateWorkflowStepReq{
			StepKey:          key,
			Name:             "步骤" + key,
			ApproverStrategy: approval.ApproverStrategyUser,
			ApproverValue:    "100",
			ApprovalMode:     approval.ApprovalModeAny,
			RejectTargetType: approval.RejectTargetSubmitter,
		}
	}

	t.Run("重复step_key报错", func(t *testing.T) {
		_, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
			Code:      "dup_key",
			Name:      "重复key",
			CreatedBy: 1,
			Steps:     []*approval.CreateWorkflowStepReq{baseStep("a"), baseStep("a")},
		})
		assert.ErrorIs(t, err, approval.ErrInvalidStepLayout)
	})

	t.Run("specific没有给目标key报错", func(t *testing.T) {
		step := baseStep("a")
		step.RejectTargetType = approval.RejectTargetSpecific
		_, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
			Code:      "no_target",
			Name:      "缺目标",
			CreatedBy: 1,
			Steps:     []*approval.CreateWorkflowStepReq{step},
		})
		assert.ErrorIs(t, err, approval.ErrMissingRejectTarget)
	})

	t.Run("specific目标key不存在报错", func(t *testing.T) {
		step := baseStep("a")
		step.RejectTargetType = approval.RejectTargetSpecific
		step.RejectTargetStepKey = approval.String("nowhere")
		_, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
			Code:      "bad_target",
			Name:      "目标不存在",
			CreatedBy: 1,
			Steps:     []*approval.CreateWorkflowStepReq{step},
		})
		assert.ErrorIs(t, err, approval.ErrRejectTargetNotFound)
	})

	t.Run("空步骤列表报错", func(t *testing.T) {
		_, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
			Code:      "empty",
			Name:      "空流程",
			CreatedBy: 1,
			Steps:     []*approval.CreateWorkflowStepReq{},
		})
		assert.ErrorIs(t, err, approval.ErrParamInvalid)
	})

	t.Run("非法策略报错", func(t *testing.T) {
		step := baseStep("a")
		step.ApproverStrategy = "magic"
		_, err := service.CreateWorkflow(ctx, &approval.CreateWorkflowReq{
			Code:      "bad_strategy",
			Name:      "非法策略",
			CreatedBy: 1,
			Steps:     []*approval.CreateWorkflowStepReq{step},
		})
		assert.ErrorIs(t, err, approval.ErrParamInvalid)
	})
}
