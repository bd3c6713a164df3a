package perm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Actor 请求者。由接入方实现，通常包装会话里的用户对象
type Actor interface {
	// Identity 稳定的身份标识
	Identity() string
	// TenantID 所属租户，无租户概念时返回空
	TenantID() string
	Roles() []string
	HasRole(role string) bool
	// HasPermission 原生权限查询，slug 形如 user_profiles.update
	HasPermission(slug string) bool
}

// SimpleActor 基于静态角色和权限集合的请求者实现
type SimpleActor struct {
	ID          string
	Tenant      string
	RoleList    []string
	Permissions []string
}

func (a *SimpleActor) Identity() string {
	return a.ID
}

func (a *SimpleActor) TenantID() string {
	return a.Tenant
}

func (a *SimpleActor) Roles() []string {
	return a.RoleList
}

func (a *SimpleActor) HasRole(role string) bool {
	for _, r := range a.RoleList {
		if r == role {
			return true
		}
	}
	return false
}

func (a *SimpleActor) HasPermission(slug string) bool {
	for _, p := range a.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}

// Fingerprint 请求者的权限指纹，参与缓存键的计算。
// 身份、角色、租户任一变化都会改变指纹
func Fingerprint(actor Actor) string {
	if actor == nil {
		return "anonymous"
	}

	roles := append([]string{}, actor.Roles()...)
	sort.Strings(roles)

	h := sha256.New()
	fmt.Fprintf(h, "id=%s;tenant=%s;roles=%s", actor.Identity(), actor.TenantID(), strings.Join(roles, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
