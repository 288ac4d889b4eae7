package approval

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

// resolveApprovers 按步骤定义的策略解析出审批人快照
// 解析只在步骤实例创建的时候发生一次,结果冻结进assigned_to
// 之后角色成员变动不会影响已经创建的步骤实例
func (s *ApprovalServiceImpl) resolveApprovers(ctx context.Context, step *WorkflowStepPo, rc *ResolveContext) ([]int64, error) {
	switch step.ApproverStrategy {
	case ApproverStrategyUser:
		userID, err := strconv.ParseInt(step.ApproverValue, 10, 64)
		if err != nil || userID <= 0 {
			return nil, errors.WithMessagef(ErrInvalidApproverUser, "stepKey: %s, approverValue: %s", step.StepKey, step.ApproverValue)
		}
		exists, err := s.identity.UserExists(ctx, userID)
		if err != nil {
			return nil, errors.WithMessagef(err, "UserExists failed, userID: %d", userID)
		}
		if !exists {
			return nil, errors.WithMessagef(ErrInvalidApproverUser, "stepKey: %s, userID: %d", step.StepKey, userID)
		}
		return []int64{userID}, nil
	case ApproverStrategyRole:
		// 空结果是合法的,角色下还没有人,步骤照样创建,由调用方打日志提醒运营处理
		userIDs, err := s.identity.UsersWithRole(ctx, step.ApproverValue)
		if err != nil {
			return nil, errors.WithMessagef(err, "UsersWithRole failed, roleCode: %s", step.ApproverValue)
		}
		return UniqueInt64(userIDs), nil
	case ApproverStrategyDynamic:
		userIDs, err := s.resolvers.resolve(ctx, step.ApproverValue, rc)
		if err != nil {
			return nil, errors.WithMessagef(err, "dynamic resolve failed, stepKey: %s, resolverKey: %s", step.StepKey, step.ApproverValue)
		}
		return UniqueInt64(userIDs), nil
	default:
		return nil, errors.WithMessagef(ErrUnsupportedStrategy, "stepKey: %s, strategy: %s", step.StepKey, step.ApproverStrategy)
	}
}

func UniqueInt64(arr []int64) []int64 {
	ret := make([]int64, 0)
	arrItemMap := make(map[int64]struct{})
	for _, v := range arr {
		if _, ok := arrItemMap[v]; !ok {
			ret = append(ret, v)
			arrItemMap[v] = struct{}{}
		}
	}
	return ret
}

func containsInt64(arr []int64, target int64) bool {
	for _, v := range arr {
		if v == target {
			return true
		}
	}
	return false
}
