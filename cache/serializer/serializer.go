package serializer

import (
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

// Serializer 值序列化接口，缓存存储用它把任意值编码为字节流。
type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

// NewByteSerializerWithOptions 根据配置创建字节序列化器。
// options 为 nil 时默认使用 MsgPack。
func NewByteSerializerWithOptions[T any](options *ref.TypeOptions) (Serializer[T, []byte], error) {
	// 注册 serializer 类型
	ref.RegisterT[*JSONSerializer[T]](NewJSONSerializer[T])
	ref.RegisterT[*BSONSerializer[T]](NewBSONSerializer[T])
	ref.RegisterT[*MsgPackSerializer[T]](NewMsgPackSerializer[T])

	if options == nil {
		return NewMsgPackSerializer[T](), nil
	}

	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	if obj == nil {
		return nil, errors.New("serializer is nil")
	}

	s, ok := obj.(Serializer[T, []byte])
	if !ok {
		return nil, errors.New("object is not a Serializer")
	}

	return s, nil
}
