package commonregister

import (
	"context"

	"github.com/blingmoon/approval-flow/approval"
	"github.com/pkg/errors"
)

// ManagerLookup 提交人主管的外部查询,由接入方实现
type ManagerLookup interface {
	ManagerOf(ctx context.Context, userID int64) ([]int64, error)
}

// RegisterCommonResolvers 注册内置的动态审批人解析器
// 进程启动的时候调用一次,注册表之后只读
func RegisterCommonResolvers(registry *approval.DynamicResolverRegistry, managers ManagerLookup) error {
	err := registry.Register(
		"submitter",
		"提交人",
		"解析为发起这次审批的提交人自己,常用于退回后的重新提交步骤",
		func(ctx context.Context, rc *approval.ResolveContext) ([]int64, error) {
			return []int64{rc.SubmitterID}, nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register submitter resolver failed")
	}

	err = registry.Register(
		"submitter_manager",
		"提交人主管",
		"解析为提交人的直属主管,主管关系由接入方的ManagerLookup提供",
		func(ctx context.Context, rc *approval.ResolveContext) ([]int64, error) {
			if managers == nil {
				return nil, errors.New("manager lookup not configured")
			}
			userIDs, err := managers.ManagerOf(ctx, rc.SubmitterID)
			if err != nil {
				return nil, errors.Wrapf(err, "ManagerOf failed, submitterID: %d", rc.SubmitterID)
			}
			return userIDs, nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register submitter_manager resolver failed")
	}
	return nil
}

// MapManagerLookup 基于内存map的ManagerLookup,给示例和测试使用
type MapManagerLookup map[int64][]int64

func (m MapManagerLookup) ManagerOf(ctx context.Context, userID int64) ([]int64, error) {
	return m[userID], nil
}
