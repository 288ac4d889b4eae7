package approval

import "context"

type ApprovalService interface {
	/**
	 * @description: 发起一次审批
	 *				 取指定code的当前激活版本,创建实例并打开第一步,写入submit流水
	 *				 整个操作在一个事务里面完成,不会观察到半成品实例
	 * @param ctx context.Context
	 * @param req *StartWorkflowReq
	 * @return *StartWorkflowResp, error
	 */
	StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*StartWorkflowResp, error)

	/**
	 * @description: 审批通过当前步骤
	 *				 any模式一人通过即满足,all模式需要快照里面所有人都通过
	 *				 满足后推进到下一步,终止步骤满足后整个实例变成approved
	 *				 同一个实例同一时间只会被一个goroutine操作,拿不到锁返回错误
	 * @param ctx context.Context
	 * @param req *ApproveReq
	 * @return *DecisionResp, error
	 */
	Approve(ctx context.Context, req *ApproveReq) (*DecisionResp, error)

	/**
	 * @description: 驳回当前步骤
	 *				 步骤允许退回时按退回目标类型把实例退回到目标步骤,实例保持in_progress
	 *				 不允许退回或者退回语义上没有更早步骤时,实例变成rejected
	 *				 runtime类型的目标需要req.TargetStepID显式指定
	 * @param ctx context.Context
	 * @param req *RejectReq
	 * @return *DecisionResp, error
	 */
	Reject(ctx context.Context, req *RejectReq) (*DecisionResp, error)

	/**
	 * @description: 创建一个新的工作流定义版本,带上它的全部步骤
	 *				 version取同code的最大版本+1,创建出来是未激活的
	 * @param ctx context.Context
	 * @param req *CreateWorkflowReq
	 * @return *WorkflowEntity, error
	 */
	CreateWorkflow(ctx context.Context, req *CreateWorkflowReq) (*WorkflowEntity, error)

	/**
	 * @description: 基于已有版本克隆一个新版本
	 *				 克隆的步骤会拿到新的ID,所以specific类型的退回目标会被置空
	 *				 被置空的步骤key会放在返回值里面,需要提示工作流设计者重新配置
	 * @param ctx context.Context
	 * @param req *CreateNewVersionReq
	 * @return *CreateNewVersionResp, error
	 */
	CreateNewVersion(ctx context.Context, req *CreateNewVersionReq) (*CreateNewVersionResp, error)

	/**
	 * @description: 激活指定版本
	 *				 同一个事务里面先取消同code全部版本的激活再激活目标版本
	 *				 保证提交之后同code有且只有一个激活版本
	 * @param ctx context.Context
	 * @param workflowID int64
	 * @return error
	 */
	ActivateVersion(ctx context.Context, workflowID int64) error

	/**
	 * @description: 取消激活指定版本,只影响这一个版本
	 * @param ctx context.Context
	 * @param workflowID int64
	 * @return error
	 */
	DeactivateVersion(ctx context.Context, workflowID int64) error

	/**
	 * @description: 查询实例详情,带上步骤实例历史和操作流水,给展示层使用
	 * @param ctx context.Context
	 * @param instanceID int64
	 * @return *InstanceDetailEntity, error
	 */
	QueryInstanceDetail(ctx context.Context, instanceID int64) (*InstanceDetailEntity, error)
}

// ApprovalServiceImpl 审批工作流服务
type ApprovalServiceImpl struct {
	repo      ApprovalRepo
	opLock    ApprovalLock
	identity  IdentityProvider
	resolvers *DynamicResolverRegistry
}

func NewApprovalService(repo ApprovalRepo, opLock ApprovalLock, identity IdentityProvider, resolvers *DynamicResolverRegistry) ApprovalService {
	return &ApprovalServiceImpl{
		repo:      repo,
		opLock:    opLock,
		identity:  identity,
		resolvers: resolvers,
	}
}
