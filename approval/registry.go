package approval

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ResolveContext 审批人解析时的运行时上下文
type ResolveContext struct {
	InstanceID     int64
	WorkflowID     int64
	SubmitterID    int64
	RefType        string
	RefID          string
	PreviousStepID *int64 // 上一个步骤定义ID,第一步时为空
}

// DynamicResolverFunc 动态审批人解析函数,返回用户ID列表
type DynamicResolverFunc func(ctx context.Context, rc *ResolveContext) ([]int64, error)

// DynamicResolverInfo 暴露给配置界面的只读元信息,不包含解析函数本身
type DynamicResolverInfo struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type dynamicResolver struct {
	info    DynamicResolverInfo
	resolve DynamicResolverFunc
}

// DynamicResolverRegistry 动态解析器注册表
// 进程启动时构建一次注册完,之后只读,显式传给服务,不做包级全局状态
type DynamicResolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]*dynamicResolver
}

func NewDynamicResolverRegistry() *DynamicResolverRegistry {
	return &DynamicResolverRegistry{
		resolvers: make(map[string]*dynamicResolver),
	}
}

func (r *DynamicResolverRegistry) Register(key string, label string, description string, fn DynamicResolverFunc) error {
	if fn == nil {
		return errors.New("resolver fn is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resolvers[key]; ok {
		return errors.Errorf("resolver already registered, key: %s", key)
	}
	r.resolvers[key] = &dynamicResolver{
		info: DynamicResolverInfo{
			Key:         key,
			Label:       label,
			Description: description,
		},
		resolve: fn,
	}
	return nil
}

// Describe 返回全部已注册解析器的元信息,给配置界面展示用
func (r *DynamicResolverRegistry) Describe() []DynamicResolverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]DynamicResolverInfo, 0, len(r.resolvers))
	for _, resolver := range r.resolvers {
		infos = append(infos, resolver.info)
	}
	return infos
}

// resolve 只给审批人解析器内部使用,不对外暴露解析函数
func (r *DynamicResolverRegistry) resolve(ctx context.Context, key string, rc *ResolveContext) ([]int64, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownResolver, "key: %s", key)
	}
	return resolver.resolve(ctx, rc)
}
