package action

import (
	"context"

	"github.com/pkg/errors"
)

// Handler 单行回调动作绑定的操作，返回给使用者的提示信息
type Handler func(ctx context.Context, actx *Context) (string, error)

// BulkHandler 批量动作绑定的操作，一次作用于整个行集，
// 行集内的部分失败由操作自己在返回信息里报告
type BulkHandler func(ctx context.Context, actx *Context, rows []map[string]interface{}) (string, error)

// NavigationAction 应用内跳转动作
type NavigationAction struct {
	Meta

	// 目标路由模板，{field} 占位符从行中取值
	RouteTemplate string
}

func (a *NavigationAction) Kind() Kind { return KindNavigation }

// Resolve 按行展开目标路由
func (a *NavigationAction) Resolve(row map[string]interface{}) string {
	return expandTemplate(a.RouteTemplate, row)
}

// ExternalLinkAction 外部链接动作
type ExternalLinkAction struct {
	Meta

	// 目标地址模板，{field} 占位符从行中取值
	URLTemplate string
}

func (a *ExternalLinkAction) Kind() Kind { return KindExternalLink }

func (a *ExternalLinkAction) Resolve(row map[string]interface{}) string {
	return expandTemplate(a.URLTemplate, row)
}

// CallbackAction 单行回调动作，在渲染之外由边界层触发执行
type CallbackAction struct {
	Meta

	// 绑定的操作
	Handler Handler
}

func (a *CallbackAction) Kind() Kind { return KindCallback }

// Execute 对一行执行绑定的操作。操作出错或 panic 都折叠为
// 失败结果，绝不抛回渲染路径
func (a *CallbackAction) Execute(ctx context.Context, actx *Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Message: errors.Errorf("action panicked: %v", r).Error()}
		}
	}()

	if a.Handler == nil {
		return Result{Success: false, Message: "no handler bound"}
	}
	message, err := a.Handler(ctx, actx)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: message}
}

// ModalAction 弹窗动作。先由展示层渲染指定的弹窗组件，
// 提交后执行绑定的操作
type ModalAction struct {
	Meta

	// 弹窗组件标识
	Component string

	// 提交后绑定的操作，可以为空
	Handler Handler
}

func (a *ModalAction) Kind() Kind { return KindModal }

func (a *ModalAction) Execute(ctx context.Context, actx *Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Message: errors.Errorf("action panicked: %v", r).Error()}
		}
	}()

	if a.Handler == nil {
		return Result{Success: false, Message: "no handler bound"}
	}
	message, err := a.Handler(ctx, actx)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: message}
}

// BulkAction 批量动作，作用于选中的行集而不是单行。
// 在类型层面与行动作区分，永远不出现在行级动作列表里
type BulkAction struct {
	Meta

	// 绑定的操作
	Handler BulkHandler
}

func (a *BulkAction) Kind() Kind { return KindBulk }

// Execute 对物化的行集执行一次绑定的操作，返回一个聚合结果
func (a *BulkAction) Execute(ctx context.Context, actx *Context, rows []map[string]interface{}) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Message: errors.Errorf("action panicked: %v", r).Error()}
		}
	}()

	if a.Handler == nil {
		return Result{Success: false, Message: "no handler bound"}
	}
	message, err := a.Handler(ctx, actx, rows)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: message}
}
