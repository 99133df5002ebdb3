// Package optional 区分 JSON 字段的三种状态：缺省、显式 null、有值。
package optional

import (
	"bytes"
	"encoding/json"
)

// Field 用于部分更新请求。
//
// 字段缺省时 Set 为 false；显式 null 时 Set 为 true 且 Null 为 true。
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Of 构造一个有值字段。
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null 构造一个显式 null 字段。
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// Present 表示字段出现且不为 null。
func (f Field[T]) Present() bool {
	return f.Set && !f.Null
}

// UnmarshalJSON 只有字段出现在 JSON 中时才会被调用。
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON 缺省或 null 都输出 null。
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Present() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}
