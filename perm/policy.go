package perm

import (
	"context"
	"sync"
)

// Policy 资源专属的决策器。decided 为 false 表示弃权，
// 解析链继续走后续环节
type Policy interface {
	Resolve(ctx context.Context, actor Actor, ability string, ref ResourceRef, attrs map[string]interface{}) (allow bool, decided bool)
}

// PolicyFunc 函数形式的 Policy
type PolicyFunc func(ctx context.Context, actor Actor, ability string, ref ResourceRef, attrs map[string]interface{}) (bool, bool)

func (f PolicyFunc) Resolve(ctx context.Context, actor Actor, ability string, ref ResourceRef, attrs map[string]interface{}) (bool, bool) {
	return f(ctx, actor, ability, ref, attrs)
}

// PolicyRegistry 资源名到决策器的注册表。进程启动时构造一次，
// 作为显式协作者传给 Gate，不使用包级全局状态
type PolicyRegistry struct {
	mutex    sync.RWMutex
	policies map[string]Policy
}

func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{
		policies: make(map[string]Policy),
	}
}

// Register 为一类资源注册决策器，重复注册时后者覆盖前者
func (r *PolicyRegistry) Register(resourceName string, policy Policy) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.policies[resourceName] = policy
}

func (r *PolicyRegistry) Lookup(resourceName string) (Policy, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	policy, ok := r.policies[resourceName]
	return policy, ok
}
