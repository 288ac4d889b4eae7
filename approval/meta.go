package approval

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validatorUtil = validator.New()

var (
	ErrWorkflowNotFound     = errors.New("approval workflow not found")
	ErrStepNotFound         = errors.New("approval workflow step not found")
	ErrInstanceNotFound     = errors.New("approval instance not found")
	ErrStepInstanceNotFound = errors.New("approval step instance not found")

	// ErrInvalidState: 操作的对象不在要求的状态上,比如对一个非pending的步骤实例进行审批
	// 并发审批时,输掉竞争的一方也会拿到这个错误
	ErrInvalidState = errors.New("approval invalid state")
	// ErrForbidden: 操作人不在当前步骤的审批人快照里面
	ErrForbidden = errors.New("approval actor forbidden")

	// 配置类错误,引擎遇到这类错误整个操作失败,绝对不能猜一个默认审批人或者默认目标步骤
	ErrNoActiveWorkflow        = errors.New("no active workflow for code")
	ErrAmbiguousActiveWorkflow = errors.New("more than one active workflow for code")
	ErrEmptyWorkflow           = errors.New("workflow has no steps")
	ErrUnknownResolver         = errors.New("dynamic resolver not registered")
	ErrUnsupportedStrategy     = errors.New("unsupported approver strategy")
	ErrUnsupportedRejectTarget = errors.New("unsupported reject target type")
	ErrInvalidApproverUser     = errors.New("approver value is not a valid user")
	ErrMissingRejectTarget     = errors.New("specific reject target step not set")
	ErrRejectTargetNotFound    = errors.New("reject target step not found in workflow")
	ErrNoPreviousStep          = errors.New("no previous step to send back to")
	ErrRuntimeTargetRequired   = errors.New("runtime reject target requires an explicit target step")
	ErrInvalidStepLayout       = errors.New("workflow step layout invalid")

	ErrConflict     = errors.New("approval operation conflict")
	ErrParamInvalid = errors.New("approval param invalid")
)

type InstanceStatus = string

const (
	// 进行中,唯一的非终止状态
	InstanceStatusInProgress InstanceStatus = "in_progress"
	// 通过, 终止状态, 终止步骤审批满足后进入
	InstanceStatusApproved InstanceStatus = "approved"
	// 拒绝, 终止状态, 驳回且没有退回目标时进入
	InstanceStatusRejected InstanceStatus = "rejected"
)

func IsOverInstanceStatus(status InstanceStatus) bool {
	return status == InstanceStatusApproved || status == InstanceStatusRejected
}

func GetInstanceStatusText(status InstanceStatus) string {
	switch status {
	case InstanceStatusInProgress:
		return "审批中"
	case InstanceStatusApproved:
		return "已通过"
	case InstanceStatusRejected:
		return "已拒绝"
	}
	return "未知"
}

type StepInstanceStatus = string

const (
	StepInstanceStatusPending  StepInstanceStatus = "pending"
	StepInstanceStatusApproved StepInstanceStatus = "approved"
	StepInstanceStatusRejected StepInstanceStatus = "rejected"
)

func GetStepInstanceStatusText(status StepInstanceStatus) string {
	switch status {
	case StepInstanceStatusPending:
		return "待审批"
	case StepInstanceStatusApproved:
		return "已通过"
	case StepInstanceStatusRejected:
		return "已驳回"
	}
	return "未知"
}

// ApproverStrategy 审批人解析策略
type ApproverStrategy = string

const (
	ApproverStrategyUser    ApproverStrategy = "user"    // approver_value 为用户ID
	ApproverStrategyRole    ApproverStrategy = "role"    // approver_value 为角色code
	ApproverStrategyDynamic ApproverStrategy = "dynamic" // approver_value 为动态解析器key
)

// ApprovalMode 审批满足条件
type ApprovalMode = string

const (
	ApprovalModeAny ApprovalMode = "any" // 任意一个审批人通过即满足
	ApprovalModeAll ApprovalMode = "all" // 所有审批人都通过才满足
)

// RejectTargetType 驳回退回目标类型
type RejectTargetType = string

const (
	RejectTargetPrevious  RejectTargetType = "previous"  // 退回上一步
	RejectTargetSubmitter RejectTargetType = "submitter" // 退回第一步,即提交人重新提交点
	RejectTargetSpecific  RejectTargetType = "specific"  // 退回定义里面指定的步骤
	RejectTargetRuntime   RejectTargetType = "runtime"   // 驳回时由审批人指定目标步骤
)

type ActionType = string

const (
	ActionSubmit   ActionType = "submit"
	ActionApprove  ActionType = "approve"
	ActionReject   ActionType = "reject"
	ActionSendBack ActionType = "send_back"
)

type DecisionType = string

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
)

// IsConfigError 判断是否是配置类错误
// 配置类错误需要人工介入处理,比如工作流定义不对,解析器没有注册
// 业务上可以用这个来决定打error级别日志还是warn级别日志
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	if errors.Is(causeErr, ErrNoActiveWorkflow) ||
		errors.Is(causeErr, ErrAmbiguousActiveWorkflow) ||
		errors.Is(causeErr, ErrEmptyWorkflow) ||
		errors.Is(causeErr, ErrUnknownResolver) ||
		errors.Is(causeErr, ErrUnsupportedStrategy) ||
		errors.Is(causeErr, ErrUnsupportedRejectTarget) ||
		errors.Is(causeErr, ErrInvalidApproverUser) ||
		errors.Is(causeErr, ErrMissingRejectTarget) ||
		errors.Is(causeErr, ErrRejectTargetNotFound) ||
		errors.Is(causeErr, ErrInvalidStepLayout) {
		return true
	}
	return false
}
