// Package approval 提供多步审批工作流引擎。
//
// 这是一个轻量级的 Go 审批流引擎，面向项目立项、报销这类按步骤顺序审批的业务，
// 支持版本化的流程定义和持久化。
//
// 主要特性：
//   - 版本化定义：同一个 code 下多个版本，同一时间只有一个激活版本
//   - 审批人策略：固定用户、角色展开、动态解析器三种策略，创建步骤时解析一次后冻结
//   - 会签支持：any 模式一人通过即可，all 模式需要全部审批人通过
//   - 驳回退回：驳回可以退回上一步、第一步、指定步骤或者由审批人临时指定
//   - 数据持久化：支持 GORM，可使用 MySQL、PostgreSQL、SQLite 等数据库
//   - 并发安全：支持本地锁和分布式锁（Redis），操作全部在事务里面完成
//   - 操作留痕：submit/approve/reject/send_back 全部写入只追加的操作流水
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/blingmoon/approval-flow/approval"
//	    "gorm.io/driver/sqlite"
//	    "gorm.io/gorm"
//	)
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := gorm.Open(sqlite.Open("approval.db"), &gorm.Config{})
//	    db.AutoMigrate(&approval.WorkflowPo{}, &approval.WorkflowStepPo{},
//	        &approval.InstancePo{}, &approval.StepInstancePo{},
//	        &approval.DecisionPo{}, &approval.ActionLogPo{}, &approval.UserRolePo{})
//
//	    // 2. 创建审批服务
//	    repo := approval.NewApprovalRepo(db)
//	    identity := approval.NewGormIdentityProvider(db)
//	    registry := approval.NewDynamicResolverRegistry()
//	    service := approval.NewApprovalService(repo, approval.NewLocalApprovalLock(), identity, registry)
//
//	    // 3. 创建并激活流程定义
//	    workflow, _ := service.CreateWorkflow(context.Background(), &approval.CreateWorkflowReq{
//	        Code:      "project_proposal",
//	        Name:      "项目立项审批",
//	        CreatedBy: 1,
//	        Steps: []*approval.CreateWorkflowStepReq{
//	            {StepKey: "manager", Name: "主管审批", ApproverStrategy: "user", ApproverValue: "100", ApprovalMode: "any", RejectTargetType: "submitter"},
//	            {StepKey: "finance", Name: "财务会签", ApproverStrategy: "role", ApproverValue: "FINANCE", ApprovalMode: "all", CanSendBack: true, RejectTargetType: "previous"},
//	        },
//	    })
//	    service.ActivateVersion(context.Background(), workflow.ID)
//
//	    // 4. 发起审批并审批通过
//	    started, _ := service.StartWorkflow(context.Background(), &approval.StartWorkflowReq{
//	        WorkflowCode: "project_proposal",
//	        RefType:      "project_proposal",
//	        RefID:        "P-001",
//	        SubmitterID:  9,
//	    })
//	    service.Approve(context.Background(), &approval.ApproveReq{
//	        StepInstanceID: started.StepInstanceID,
//	        ActorID:        100,
//	    })
//	}
//
// 审批人快照机制：
//
// 步骤实例创建的时候按策略解析一次审批人，结果冻结进 assigned_to。
// 之后角色成员变动不会影响已经创建的步骤实例，保证历史可追溯。
// 角色展开为空时步骤照样创建，日志里面会有warn，需要运营补上角色成员。
//
// 退回机制：
//
// 驳回时按步骤定义的 reject_target_type 决定去向：
//   - previous: 退回上一步，第一步上驳回直接报错
//   - submitter: 退回第一步，第一步上驳回按终止处理，实例变成 rejected
//   - specific: 退回定义里面指定的步骤
//   - runtime: 由审批人在驳回请求里面显式指定目标步骤
//
// 退回是改道不是终止，实例保持 in_progress，目标步骤会新建步骤实例，
// 老的步骤实例保持 rejected 状态留痕。
//
// 更多示例和文档请访问: https://github.com/blingmoon/approval-flow
package approval
