package ref

import (
	"fmt"
	"reflect"
	"sync"
)

// TypeOptions 描述一个可插拔组件：命名空间 + 类型名 + 该类型构造函数的参数。
// 数据源、缓存存储、序列化器、类型转换器等都通过它来选择具体实现。
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

// Convertable 用于支持配置数据到构造函数参数的自动转换。
// 实现了此接口的 options 在调用构造函数前会先转换为目标参数类型。
type Convertable interface {
	ConvertTo(object interface{}) error
}

type constructor struct {
	originalFunc any
	newFunc      reflect.Value
	hasOptions   bool
	returnsError bool
}

// newConstructor 校验构造函数签名：0 或 1 个参数，1 或 2 个返回值，
// 第二个返回值必须是 error。
func newConstructor(newFunc any) (*constructor, error) {
	funcValue := reflect.ValueOf(newFunc)
	if funcValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("newFunc must be a function")
	}

	funcType := funcValue.Type()
	numIn := funcType.NumIn()
	numOut := funcType.NumOut()

	if numIn != 0 && numIn != 1 {
		return nil, fmt.Errorf("newFunc must have 0 or 1 input parameters, got %d", numIn)
	}
	if numOut != 1 && numOut != 2 {
		return nil, fmt.Errorf("newFunc must have 1 or 2 return values, got %d", numOut)
	}

	returnsError := false
	if numOut == 2 {
		errorInterface := reflect.TypeOf((*error)(nil)).Elem()
		if !funcType.Out(1).Implements(errorInterface) {
			return nil, fmt.Errorf("second return value must be error type")
		}
		returnsError = true
	}

	return &constructor{
		originalFunc: newFunc,
		newFunc:      funcValue,
		hasOptions:   numIn == 1,
		returnsError: returnsError,
	}, nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value

	if c.hasOptions {
		if options == nil {
			return nil, fmt.Errorf("constructor requires options but got nil")
		}

		processedOptions, err := c.convertOptions(options)
		if err != nil {
			return nil, fmt.Errorf("failed to convert options: %w", err)
		}
		args = []reflect.Value{reflect.ValueOf(processedOptions)}
	}

	results := c.newFunc.Call(args)

	if c.returnsError {
		if errResult := results[1].Interface(); errResult != nil {
			err, ok := errResult.(error)
			if !ok {
				return nil, fmt.Errorf("second return value is not an error")
			}
			return nil, err
		}
	}

	return results[0].Interface(), nil
}

// convertOptions 处理 Convertable 类型的 options，转换为构造函数期望的参数类型。
func (c *constructor) convertOptions(options any) (any, error) {
	convertable, ok := options.(Convertable)
	if !ok {
		return options, nil
	}

	paramType := c.newFunc.Type().In(0)

	if paramType.Kind() == reflect.Ptr {
		targetValue := reflect.New(paramType.Elem())
		if err := convertable.ConvertTo(targetValue.Interface()); err != nil {
			return nil, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
		}
		return targetValue.Interface(), nil
	}

	targetValue := reflect.New(paramType)
	if err := convertable.ConvertTo(targetValue.Interface()); err != nil {
		return nil, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
	}
	return targetValue.Elem().Interface(), nil
}

var nameConstructorMap sync.Map

func isSameFunc(func1, func2 any) bool {
	if func1 == nil || func2 == nil {
		return func1 == func2
	}
	return reflect.ValueOf(func1).Pointer() == reflect.ValueOf(func2).Pointer()
}

// Register 注册一个构造函数。重复注册相同函数是幂等的，
// 注册不同函数到同一个 key 返回错误。
func Register(namespace string, type_ string, newFunc any) error {
	key := namespace + ":" + type_

	if existingValue, ok := nameConstructorMap.Load(key); ok {
		if existingConstructor, ok := existingValue.(*constructor); ok {
			if isSameFunc(existingConstructor.originalFunc, newFunc) {
				return nil
			}
			return fmt.Errorf("constructor for %s:%s already registered with different function", namespace, type_)
		}
	}

	constructor, err := newConstructor(newFunc)
	if err != nil {
		return fmt.Errorf("failed to create constructor: %w", err)
	}

	nameConstructorMap.Store(key, constructor)
	return nil
}

// RegisterT 以类型 T 的包路径和类型名作为 namespace 和 type 注册构造函数。
func RegisterT[T any](newFunc any) error {
	namespace, typeName, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typeName, newFunc)
}

func MustRegister(namespace string, type_ string, newFunc any) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](newFunc any) {
	if err := RegisterT[T](newFunc); err != nil {
		panic(err)
	}
}

// New 根据 namespace 和 type 查找构造函数并创建实例。
// 未注册的类型返回错误。
func New(namespace string, type_ string, options any) (any, error) {
	key := namespace + ":" + type_
	value, ok := nameConstructorMap.Load(key)
	if !ok {
		return nil, fmt.Errorf("constructor not found for %s:%s", namespace, type_)
	}

	constructor, ok := value.(*constructor)
	if !ok {
		return nil, fmt.Errorf("invalid constructor type for %s:%s", namespace, type_)
	}

	return constructor.new(options)
}

// NewWithOptions 是 New 的便捷形式。
func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, fmt.Errorf("options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

// NewT 根据类型 T 的包路径和类型名创建实例。
func NewT[T any](options any) (T, error) {
	var t T

	namespace, typeName, err := typeKey[T]()
	if err != nil {
		return t, err
	}

	obj, err := New(namespace, typeName, options)
	if err != nil {
		return t, err
	}

	result, ok := obj.(T)
	if !ok {
		return t, fmt.Errorf("created object is not of type %T", t)
	}

	return result, nil
}

// typeKey 从类型 T 中提取包路径和类型名。
func typeKey[T any]() (string, string, error) {
	var t T
	tType := reflect.TypeOf(t)

	for tType != nil && tType.Kind() == reflect.Ptr {
		tType = tType.Elem()
	}
	if tType == nil {
		return "", "", fmt.Errorf("cannot determine type for %T", t)
	}

	pkgPath := tType.PkgPath()
	typeName := tType.Name()
	if pkgPath == "" || typeName == "" {
		return "", "", fmt.Errorf("cannot determine package path or type name for type %T", t)
	}

	return pkgPath, typeName, nil
}
