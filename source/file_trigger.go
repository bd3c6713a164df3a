package source

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
)

type FileTriggerOptions struct {
	// 被监视的文件路径列表
	Paths []string `cfg:"paths"`

	// 抖动合并窗口，窗口内同一文件的多次变更只触发一次
	Debounce time.Duration `cfg:"debounce" def:"200ms"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// FileTrigger 监视文档和表格文件的变更，文件被改写时触发回调，
// 典型用法是在回调里按标签失效缓存。
// 监视的是文件所在目录，编辑器原子替换文件也能感知
type FileTrigger struct {
	watcher  *fsnotify.Watcher
	paths    map[string]struct{}
	debounce time.Duration
	logger   logger.Logger

	mutex    sync.Mutex
	onChange []func(path string)
	lastFire map[string]time.Time
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewFileTriggerWithOptions(options *FileTriggerOptions) (*FileTrigger, error) {
	if options == nil || len(options.Paths) == 0 {
		return nil, errors.New("paths is required")
	}
	if options.Debounce == 0 {
		options.Debounce = 200 * time.Millisecond
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create watcher")
	}

	t := &FileTrigger{
		watcher:  watcher,
		paths:    make(map[string]struct{}),
		debounce: options.Debounce,
		logger:   l.WithGroup("fileTrigger"),
		lastFire: make(map[string]time.Time),
		done:     make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, path := range options.Paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = watcher.Close()
			return nil, errors.WithMessagef(err, "invalid path [%s]", path)
		}
		t.paths[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, errors.WithMessagef(err, "failed to watch [%s]", dir)
		}
	}

	t.wg.Add(1)
	go t.loop()
	return t, nil
}

// OnChange 注册变更回调。回调在监视协程里执行，不能阻塞
func (t *FileTrigger) OnChange(fn func(path string)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onChange = append(t.onChange, fn)
}

func (t *FileTrigger) loop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := t.paths[abs]; !watched {
				continue
			}
			t.fire(abs)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("watcher error", "error", err.Error())
		}
	}
}

func (t *FileTrigger) fire(path string) {
	t.mutex.Lock()
	now := time.Now()
	if last, ok := t.lastFire[path]; ok && now.Sub(last) < t.debounce {
		t.mutex.Unlock()
		return
	}
	t.lastFire[path] = now
	callbacks := make([]func(string), len(t.onChange))
	copy(callbacks, t.onChange)
	t.mutex.Unlock()

	t.logger.Info("file changed", "path", path)
	for _, fn := range callbacks {
		fn(path)
	}
}

func (t *FileTrigger) Close() error {
	close(t.done)
	err := t.watcher.Close()
	t.wg.Wait()
	return err
}
