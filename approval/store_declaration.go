package approval

import (
	"context"
)

type ApprovalRepo interface {
	CreateWorkflow(ctx context.Context, workflow *WorkflowPo) (*WorkflowPo, error)
	CreateWorkflowStep(ctx context.Context, step *WorkflowStepPo) (*WorkflowStepPo, error)
	QueryWorkflow(ctx context.Context, param *QueryWorkflowParams) ([]*WorkflowPo, error)
	QueryWorkflowStep(ctx context.Context, param *QueryWorkflowStepParams) ([]*WorkflowStepPo, error)
	UpdateWorkflow(ctx context.Context, param *UpdateWorkflowParams) error
	UpdateWorkflowStep(ctx context.Context, param *UpdateWorkflowStepParams) error

	CreateInstance(ctx context.Context, instance *InstancePo) (*InstancePo, error)
	QueryInstance(ctx context.Context, param *QueryInstanceParams) ([]*InstancePo, error)
	// UpdateInstance/UpdateStepInstance 返回命中的行数
	// 状态迁移类更新where里面带上期望的当前状态,行数为0说明输掉了竞争
	UpdateInstance(ctx context.Context, param *UpdateInstanceParams) (int64, error)

	CreateStepInstance(ctx context.Context, stepInstance *StepInstancePo) (*StepInstancePo, error)
	QueryStepInstance(ctx context.Context, param *QueryStepInstanceParams) ([]*StepInstancePo, error)
	UpdateStepInstance(ctx context.Context, param *UpdateStepInstanceParams) (int64, error)

	CreateDecision(ctx context.Context, decision *DecisionPo) (*DecisionPo, error)
	QueryDecision(ctx context.Context, param *QueryDecisionParams) ([]*DecisionPo, error)

	CreateActionLog(ctx context.Context, actionLog *ActionLogPo) (*ActionLogPo, error)
	QueryActionLog(ctx context.Context, param *QueryActionLogParams) ([]*ActionLogPo, error)

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentityProvider 用户和角色的外部提供方
// role策略通过它把角色code展开成用户ID列表
// user策略通过它校验approver_value是不是一个存在的用户
type IdentityProvider interface {
	UsersWithRole(ctx context.Context, roleCode string) ([]int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}
