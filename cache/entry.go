package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// persistEntry 持久化存储的值信封。嵌入式 KV 引擎本身没有过期语义，
// 过期时间随值一起落盘，读取时惰性判断。
type persistEntry struct {
	ExpireAt int64  `msgpack:"expireAt"` // Unix 纳秒时间戳，0 表示不过期
	Value    []byte `msgpack:"value"`
}

func (e *persistEntry) expired() bool {
	return e.ExpireAt != 0 && time.Now().UnixNano() > e.ExpireAt
}

func encodeEntry(value []byte, expiration time.Duration) ([]byte, error) {
	entry := &persistEntry{Value: value}
	if expiration > 0 {
		entry.ExpireAt = time.Now().Add(expiration).UnixNano()
	}
	return msgpack.Marshal(entry)
}

func decodeEntry(data []byte) (*persistEntry, error) {
	var entry persistEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
