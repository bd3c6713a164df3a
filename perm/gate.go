package perm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
)

// FallbackRule 兜底规则。每一级兜底授予哪些能力是产品策略，
// 作为配置传入而不是写死在解析链里
type FallbackRule struct {
	// 规则名，只用于日志
	Name string

	// 规则是否适用于当前请求者和资源
	Match func(actor Actor, ref ResourceRef) bool

	// 适用时授予的能力集合，"*" 表示全部。
	// 未授予的能力交给后续规则，不在这里拒绝
	Abilities []string
}

// TenantScopedRule 常用兜底规则：租户内的请求者
// 对本租户资源持有一组受限能力
func TenantScopedRule(abilities ...string) FallbackRule {
	return FallbackRule{
		Name: "tenantScoped",
		Match: func(actor Actor, ref ResourceRef) bool {
			return actor.TenantID() != ""
		},
		Abilities: abilities,
	}
}

type GateOptions struct {
	// 持有任一角色的请求者跳过整个解析链，直接放行
	SuperRoles []string `cfg:"superRoles"`

	// 兜底规则，按声明顺序求值
	FallbackRules []FallbackRule `cfg:"-"`

	// 资源决策器注册表，为 nil 时不走决策器环节
	Registry *PolicyRegistry `cfg:"-"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// Gate 权限解析链。对"请求者能否对资源行使能力"给出布尔判定，
// 链路顺序固定：超级角色、资源决策器、原生权限、兜底规则、默认拒绝。
// 求值过程中的任何异常都折叠为拒绝并记录日志，绝不让渲染崩溃
type Gate struct {
	superRoles    []string
	fallbackRules []FallbackRule
	registry      *PolicyRegistry
	logger        logger.Logger
}

func NewGateWithOptions(options *GateOptions) (*Gate, error) {
	if options == nil {
		options = &GateOptions{}
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	return &Gate{
		superRoles:    options.SuperRoles,
		fallbackRules: options.FallbackRules,
		registry:      options.Registry,
		logger:        l.WithGroup("permGate"),
	}, nil
}

// Allows 执行解析链。attrs 是随请求传入的附加上下文
func (g *Gate) Allows(ctx context.Context, actor Actor, ability string, resource ResourceRef, attrs map[string]interface{}) (allow bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.WarnContext(ctx, "permission evaluation panicked, treated as denial",
				"ability", ability, "resource", resource.Identity(), "panic", fmt.Sprint(r))
			allow = false
		}
	}()

	if actor == nil {
		return false
	}

	for _, role := range g.superRoles {
		if actor.HasRole(role) {
			return true
		}
	}

	if g.registry != nil {
		if policy, ok := g.registry.Lookup(resource.Name()); ok {
			if decision, decided := policy.Resolve(ctx, actor, ability, resource, attrs); decided {
				return decision
			}
		}
	}

	if actor.HasPermission(resource.Slug(ability)) {
		return true
	}

	for _, rule := range g.fallbackRules {
		if rule.Match == nil || !rule.Match(actor, resource) {
			continue
		}
		for _, granted := range rule.Abilities {
			if granted == "*" || granted == ability {
				return true
			}
		}
	}

	return false
}

// ForRequest 返回请求作用域的视图。同一元组的判定在一次请求内
// 只求值一次，缓存随请求结束丢弃，绝不跨请求复用
func (g *Gate) ForRequest() *RequestGate {
	return &RequestGate{
		gate: g,
		memo: make(map[string]bool),
	}
}

// RequestGate 带请求内决策缓存的 Gate 视图。
// 并发安全，一次渲染内的多处检查可以共享
type RequestGate struct {
	gate  *Gate
	mutex sync.Mutex
	memo  map[string]bool
}

func (rg *RequestGate) Allows(ctx context.Context, actor Actor, ability string, resource ResourceRef, attrs map[string]interface{}) bool {
	key := memoKey(actor, ability, resource, attrs)

	rg.mutex.Lock()
	if decision, ok := rg.memo[key]; ok {
		rg.mutex.Unlock()
		return decision
	}
	rg.mutex.Unlock()

	decision := rg.gate.Allows(ctx, actor, ability, resource, attrs)

	rg.mutex.Lock()
	rg.memo[key] = decision
	rg.mutex.Unlock()
	return decision
}

func memoKey(actor Actor, ability string, resource ResourceRef, attrs map[string]interface{}) string {
	identity := "anonymous"
	if actor != nil {
		identity = actor.Identity()
	}

	contextHash := ""
	if len(attrs) > 0 {
		buf, _ := json.Marshal(attrs)
		sum := sha256.Sum256(buf)
		contextHash = hex.EncodeToString(sum[:8])
	}

	return fmt.Sprintf("%s|%s|%s|%s", identity, ability, resource.Identity(), contextHash)
}
