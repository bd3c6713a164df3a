package table

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/tablex/action"
	"github.com/hatlonely/tablex/perm"
	"github.com/hatlonely/tablex/source"
)

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": int64(1), "name": "Alice", "email": "alice@example.com", "salary": 8500.5, "active": true, "created_at": "2024-03-01 10:00:00"},
		{"id": int64(2), "name": "Bob", "email": "bob@example.com", "salary": 7200.0, "active": false, "created_at": "2024-01-15 08:30:00"},
		{"id": int64(3), "name": "Carol", "email": "carol@example.com", "salary": 9100.0, "active": true, "created_at": "2024-02-20 16:45:00"},
	}
}

func sampleColumns() []*Column {
	return []*Column{
		{Key: "id", Label: "ID", Sortable: true},
		{Key: "name", Label: "姓名", Searchable: true, Sortable: true},
		{Key: "email", Label: "邮箱", Searchable: true},
	}
}

func memoryFactory(rows []map[string]interface{}) func() (source.Source, error) {
	return func() (source.Source, error) {
		return source.NewMemorySourceWithOptions(&source.MemorySourceOptions{Rows: rows})
	}
}

func newTestEngine(options *EngineOptions) (*Engine, error) {
	if options.SourceFactory == nil && options.Source == nil {
		options.SourceFactory = memoryFactory(sampleRows())
	}
	return NewEngineWithOptions(options)
}

// recordingSource 记录流式配置调用，用于验证引擎传给数据源的内容
type recordingSource struct {
	filters     map[string]interface{}
	search      string
	searchCols  []string
	sortColumn  string
	sortDesc    string
	fingerprint string
	fetchErr    error
	rows        source.RowSet
}

func (s *recordingSource) ApplyFilters(filters map[string]interface{}) source.Source {
	s.filters = filters
	return s
}

func (s *recordingSource) ApplySearch(term string, columns []string) source.Source {
	s.search = term
	s.searchCols = columns
	return s
}

func (s *recordingSource) ApplySort(column string, direction string) source.Source {
	s.sortColumn = column
	s.sortDesc = direction
	return s
}

func (s *recordingSource) ApplyFingerprint(fingerprint string) source.Source {
	s.fingerprint = fingerprint
	return s
}

func (s *recordingSource) FetchAll(ctx context.Context) (source.RowSet, error) {
	return s.rows, s.fetchErr
}

func (s *recordingSource) FetchPage(ctx context.Context, page int, pageSize int) (source.RowSet, *source.PageInfo, error) {
	if s.fetchErr != nil {
		return nil, nil, s.fetchErr
	}
	return s.rows, &source.PageInfo{Page: page, PageSize: pageSize, Total: len(s.rows), LastPage: 1, From: 1, To: len(s.rows)}, nil
}

func (s *recordingSource) Count(ctx context.Context) (int, error) {
	return len(s.rows), s.fetchErr
}

func (s *recordingSource) Capabilities() source.Capabilities {
	return source.Capabilities{Pagination: true, Search: true, Sort: true, Filter: true}
}

func (s *recordingSource) IsAvailable(ctx context.Context) bool {
	return true
}

func TestNewEngineWithOptions(t *testing.T) {
	Convey("引擎构造校验", t, func() {
		Convey("表名缺失报配置错误", func() {
			_, err := NewEngineWithOptions(&EngineOptions{SourceFactory: memoryFactory(sampleRows())})
			So(err, ShouldNotBeNil)
			var cfgErr *ConfigurationError
			So(errors.As(err, &cfgErr), ShouldBeTrue)
		})

		Convey("数据源缺失报配置错误", func() {
			_, err := NewEngineWithOptions(&EngineOptions{Name: "users"})
			So(err, ShouldNotBeNil)
			var cfgErr *ConfigurationError
			So(errors.As(err, &cfgErr), ShouldBeTrue)
		})

		Convey("重复列键报配置错误", func() {
			_, err := newTestEngine(&EngineOptions{
				Name:    "users",
				Columns: []*Column{{Key: "name"}, {Key: "name"}},
			})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate column key")
		})

		Convey("重复动作键报配置错误", func() {
			_, err := newTestEngine(&EngineOptions{
				Name: "users",
				Actions: []action.Action{
					&action.CallbackAction{Meta: action.Meta{Key: "approve"}},
					&action.ModalAction{Meta: action.Meta{Key: "approve"}},
				},
			})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate action key")
		})

		Convey("默认每页超过上限报配置错误", func() {
			_, err := newTestEngine(&EngineOptions{Name: "users", DefaultPerPage: 200, MaxPerPage: 100})
			So(err, ShouldNotBeNil)
		})

		Convey("数据源配置坏掉在构造期暴露", func() {
			_, err := NewEngineWithOptions(&EngineOptions{
				Name: "users",
				SourceFactory: func() (source.Source, error) {
					return source.NewMemorySourceWithOptions(&source.MemorySourceOptions{})
				},
			})
			So(err, ShouldNotBeNil)
			var cfgErr *ConfigurationError
			So(errors.As(err, &cfgErr), ShouldBeTrue)
		})
	})
}

func TestEngineRender(t *testing.T) {
	Convey("Render 基本流程", t, func() {
		ctx := context.Background()

		Convey("输出行只包含可见列", func() {
			engine, err := newTestEngine(&EngineOptions{Name: "users", Columns: sampleColumns()})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(len(payload.Data), ShouldEqual, 3)
			So(payload.Data[0]["name"], ShouldEqual, "Alice")
			So(payload.Data[0], ShouldNotContainKey, "salary")
			So(len(payload.Columns), ShouldEqual, 3)
		})

		Convey("隐藏列不出现在输出里", func() {
			columns := append(sampleColumns(), &Column{Key: "salary", Hidden: true})
			engine, err := newTestEngine(&EngineOptions{Name: "users", Columns: columns})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0], ShouldNotContainKey, "salary")
			So(len(payload.Columns), ShouldEqual, 3)
		})

		Convey("空搜索词等价于没有搜索", func() {
			engine, err := newTestEngine(&EngineOptions{Name: "users", Columns: sampleColumns()})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{Search: ""})
			So(err, ShouldBeNil)
			So(payload.Pagination.Total, ShouldEqual, 3)
		})

		Convey("搜索只作用于可搜索的可见列", func() {
			engine, err := newTestEngine(&EngineOptions{Name: "users", Columns: sampleColumns()})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{Search: "bob@"})
			So(err, ShouldBeNil)
			So(payload.Pagination.Total, ShouldEqual, 1)
			So(payload.Data[0]["name"], ShouldEqual, "Bob")
		})

		Convey("值为 nil 的过滤条件被忽略", func() {
			engine, err := newTestEngine(&EngineOptions{Name: "users", Columns: sampleColumns()})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{Filters: map[string]interface{}{"active": nil}})
			So(err, ShouldBeNil)
			So(payload.Pagination.Total, ShouldEqual, 3)
		})

		Convey("排序只接受可见且可排序的列", func() {
			src := &recordingSource{rows: source.RowSet{}}
			engine, err := NewEngineWithOptions(&EngineOptions{
				Name:          "users",
				Columns:       sampleColumns(),
				SourceFactory: func() (source.Source, error) { return src, nil },
			})
			So(err, ShouldBeNil)

			_, err = engine.Render(ctx, &Request{Sort: &SortSpec{Column: "email", Direction: "desc"}})
			So(err, ShouldBeNil)
			So(src.sortColumn, ShouldEqual, "")

			_, err = engine.Render(ctx, &Request{Sort: &SortSpec{Column: "name", Direction: "desc"}})
			So(err, ShouldBeNil)
			So(src.sortColumn, ShouldEqual, "name")
		})

		Convey("组合列能看到全部原始字段", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name: "users",
				Columns: []*Column{
					{Key: "contact", Label: "联系方式", Fields: []string{"name", "email"}},
				},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0], ShouldContainKey, "contact")
		})
	})
}

func TestEnginePagination(t *testing.T) {
	Convey("分页边界", t, func() {
		ctx := context.Background()

		rows := make([]map[string]interface{}, 0, 25)
		for i := 1; i <= 25; i++ {
			rows = append(rows, map[string]interface{}{"id": int64(i), "name": "user"})
		}

		newEngine := func() *Engine {
			engine, err := NewEngineWithOptions(&EngineOptions{
				Name:           "users",
				Columns:        []*Column{{Key: "id"}},
				SourceFactory:  memoryFactory(rows),
				DefaultPerPage: 10,
				MaxPerPage:     20,
			})
			So(err, ShouldBeNil)
			return engine
		}

		Convey("未指定每页行数时用默认值", func() {
			payload, err := newEngine().Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Pagination.PerPage, ShouldEqual, 10)
			So(len(payload.Data), ShouldEqual, 10)
			So(payload.Pagination.LastPage, ShouldEqual, 3)
		})

		Convey("每页行数超过上限时收敛到上限", func() {
			payload, err := newEngine().Render(ctx, &Request{PerPage: 500})
			So(err, ShouldBeNil)
			So(payload.Pagination.PerPage, ShouldEqual, 20)
			So(len(payload.Data), ShouldEqual, 20)
		})

		Convey("页码越界时退到最后一页", func() {
			payload, err := newEngine().Render(ctx, &Request{Page: 99})
			So(err, ShouldBeNil)
			So(payload.Pagination.CurrentPage, ShouldEqual, 3)
			So(len(payload.Data), ShouldEqual, 5)
			So(payload.Pagination.From, ShouldEqual, 21)
			So(payload.Pagination.To, ShouldEqual, 25)
		})
	})
}

func TestEnginePermission(t *testing.T) {
	Convey("权限裁剪", t, func() {
		ctx := context.Background()

		gate, err := perm.NewGateWithOptions(&perm.GateOptions{SuperRoles: []string{"admin"}})
		So(err, ShouldBeNil)

		newEngine := func() *Engine {
			engine, err := NewEngineWithOptions(&EngineOptions{
				Name:          "users",
				Columns:       sampleColumns(),
				Filters:       []*Filter{{Key: "active", Label: "状态", Kind: "select"}},
				SourceFactory: memoryFactory(sampleRows()),
				Gate:          gate,
				Actions: []action.Action{
					&action.NavigationAction{
						Meta:          action.Meta{Key: "edit", Label: "编辑"},
						RouteTemplate: "/users/{id}/edit",
					},
				},
			})
			So(err, ShouldBeNil)
			return engine
		}

		Convey("没有任何权限时列、过滤器、动作全部被裁掉，行还在", func() {
			payload, err := newEngine().Render(ctx, &Request{Actor: &perm.SimpleActor{ID: "u1"}})
			So(err, ShouldBeNil)
			So(len(payload.Columns), ShouldEqual, 0)
			So(len(payload.Filters), ShouldEqual, 0)
			So(len(payload.Actions.Row), ShouldEqual, 0)
			So(len(payload.Data), ShouldEqual, 3)
		})

		Convey("超级角色看到全部元素", func() {
			admin := &perm.SimpleActor{ID: "u1", RoleList: []string{"admin"}}
			payload, err := newEngine().Render(ctx, &Request{Actor: admin})
			So(err, ShouldBeNil)
			So(len(payload.Columns), ShouldEqual, 3)
			So(len(payload.Filters), ShouldEqual, 1)
			So(len(payload.Actions.Row), ShouldEqual, 1)
		})

		Convey("按派生能力名逐项授权", func() {
			actor := &perm.SimpleActor{
				ID:          "u1",
				Permissions: []string{"users.view_users_columns", "users.use_active_filter"},
			}
			payload, err := newEngine().Render(ctx, &Request{Actor: actor})
			So(err, ShouldBeNil)
			So(len(payload.Columns), ShouldEqual, 3)
			So(len(payload.Filters), ShouldEqual, 1)
			So(len(payload.Actions.Row), ShouldEqual, 0)
		})

		Convey("动作能力名默认取动作键", func() {
			actor := &perm.SimpleActor{ID: "u1", Permissions: []string{"users.edit"}}
			payload, err := newEngine().Render(ctx, &Request{Actor: actor})
			So(err, ShouldBeNil)
			So(len(payload.Actions.Row), ShouldEqual, 1)
			So(payload.Actions.Row[0].Key, ShouldEqual, "edit")
		})

		Convey("每个请求者携带不同的权限指纹", func() {
			src := &recordingSource{rows: source.RowSet{}}
			engine, err := NewEngineWithOptions(&EngineOptions{
				Name:          "users",
				Columns:       sampleColumns(),
				SourceFactory: func() (source.Source, error) { return src, nil },
			})
			So(err, ShouldBeNil)

			_, err = engine.Render(ctx, &Request{Actor: &perm.SimpleActor{ID: "u1"}})
			So(err, ShouldBeNil)
			first := src.fingerprint

			_, err = engine.Render(ctx, &Request{Actor: &perm.SimpleActor{ID: "u2"}})
			So(err, ShouldBeNil)
			So(src.fingerprint, ShouldNotEqual, first)
			So(first, ShouldNotEqual, "")
		})
	})
}

func TestEngineActions(t *testing.T) {
	Convey("动作装配", t, func() {
		ctx := context.Background()

		Convey("行级动作按行展开跳转目标", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name:    "users",
				Columns: sampleColumns(),
				Actions: []action.Action{
					&action.NavigationAction{
						Meta:          action.Meta{Key: "edit", Label: "编辑"},
						RouteTemplate: "/users/{id}/edit",
					},
				},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)

			actions := payload.Data[0]["_actions"].([]*ActionDescriptor)
			So(len(actions), ShouldEqual, 1)
			So(actions[0].URL, ShouldEqual, "/users/1/edit")
		})

		Convey("批量动作不进入行级列表", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name:       "users",
				Columns:    sampleColumns(),
				Selectable: true,
				Actions: []action.Action{
					&action.CallbackAction{Meta: action.Meta{Key: "approve", Label: "通过"}},
					&action.BulkAction{Meta: action.Meta{Key: "export", Label: "导出"}},
				},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)

			actions := payload.Data[0]["_actions"].([]*ActionDescriptor)
			So(len(actions), ShouldEqual, 1)
			So(actions[0].Key, ShouldEqual, "approve")
			So(len(payload.Actions.Bulk), ShouldEqual, 1)
			So(payload.Actions.Bulk[0].Key, ShouldEqual, "export")
			So(payload.Meta.Selectable, ShouldBeTrue)
		})

		Convey("不可见的动作不输出，可见但不可用的带禁用标记", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name:    "users",
				Columns: sampleColumns(),
				Actions: []action.Action{
					&action.CallbackAction{Meta: action.Meta{
						Key:     "activate",
						Visible: func(actx *action.Context) bool { return actx.Row["active"] == false },
					}},
					&action.CallbackAction{Meta: action.Meta{
						Key:     "notify",
						Enabled: func(actx *action.Context) bool { return actx.Row["active"] == true },
					}},
				},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)

			// 第一行 active=true，activate 不可见，notify 可用
			first := payload.Data[0]["_actions"].([]*ActionDescriptor)
			So(len(first), ShouldEqual, 1)
			So(first[0].Key, ShouldEqual, "notify")
			So(first[0].Disabled, ShouldBeFalse)

			// 第二行 active=false，两个都可见，notify 禁用
			second := payload.Data[1]["_actions"].([]*ActionDescriptor)
			So(len(second), ShouldEqual, 2)
			for _, a := range second {
				if a.Key == "notify" {
					So(a.Disabled, ShouldBeTrue)
				}
			}
		})
	})
}

func TestEngineFetchError(t *testing.T) {
	Convey("抓取失败折叠为通用错误", t, func() {
		src := &recordingSource{fetchErr: errors.New("connection refused to db host 10.0.0.1")}
		engine, err := NewEngineWithOptions(&EngineOptions{
			Name:          "users",
			Columns:       sampleColumns(),
			SourceFactory: func() (source.Source, error) { return src, nil },
		})
		So(err, ShouldBeNil)

		_, err = engine.Render(context.Background(), &Request{})
		So(err, ShouldNotBeNil)

		var fetchErr *FetchError
		So(errors.As(err, &fetchErr), ShouldBeTrue)
		So(fetchErr.ID, ShouldNotEqual, "")
		// 对外的文案不泄露底层细节，细节只在 Unwrap 里
		So(err.Error(), ShouldNotContainSubstring, "10.0.0.1")
		So(err.Error(), ShouldContainSubstring, fetchErr.ID)
		So(fetchErr.Unwrap().Error(), ShouldContainSubstring, "10.0.0.1")
	})
}

func TestEngineCast(t *testing.T) {
	Convey("渲染时的类型转换", t, func() {
		ctx := context.Background()

		Convey("列声明的类型优先生效", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name: "users",
				Columns: []*Column{
					{Key: "name"},
					{Key: "salary", CastType: "currency"},
				},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0]["salary"], ShouldEqual, "$8,500.50")
		})

		Convey("未声明类型时自动识别", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name:    "users",
				Columns: []*Column{{Key: "active"}, {Key: "created_at"}},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0]["active"], ShouldEqual, "Yes")
			So(payload.Data[1]["active"], ShouldEqual, "No")
		})

		Convey("状态列未配置映射时输出结构化展示信息", func() {
			rows := []map[string]interface{}{
				{"id": int64(1), "status": "pending"},
			}
			engine, err := newTestEngine(&EngineOptions{
				Name:          "users",
				SourceFactory: memoryFactory(rows),
				Columns:       []*Column{{Key: "id"}, {Key: "status"}},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0]["status"], ShouldResemble, map[string]interface{}{
				"value":    "pending",
				"label":    "pending",
				"severity": "default",
			})
		})

		Convey("关闭自动识别后保留原始值", func() {
			engine, err := newTestEngine(&EngineOptions{
				Name:    "users",
				Columns: []*Column{{Key: "active", DisableAutoCast: true}},
			})
			So(err, ShouldBeNil)

			payload, err := engine.Render(ctx, &Request{})
			So(err, ShouldBeNil)
			So(payload.Data[0]["active"], ShouldEqual, true)
		})
	})
}
