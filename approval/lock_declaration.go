package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	LockFailedError        = errors.New("lock failed")
	LockFailedTimeOutError = errors.New("wait time out")
)

type ApprovalLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁,立刻返回错误
	//                 2.可以重入锁
	//  @param ctx 原来的ctx
	//  @param key 分布式锁的的key
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

// 同一个实例上的approve/reject串行化
func instanceOpLockKey(instanceID int64) string {
	return fmt.Sprintf("approval_instance_op_%d", instanceID)
}

// 同一个code上的版本激活/克隆串行化
func workflowCodeLockKey(code string) string {
	return fmt.Sprintf("approval_workflow_code_%s", code)
}
