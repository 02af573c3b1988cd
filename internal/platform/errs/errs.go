// Package errs 定义核心共识路径使用的错误分类。
//
// 每一种 Kind 对应 spec 第7节描述的一种处理动作：Malformed/Invalid 丢弃并计分，
// UnknownParent 进入孤块池，Stale 仅保留头部，Transient 退避重试，Fatal 停写并上抛。
package errs

import (
	"errors"
	"fmt"
)

// Kind 是错误分类标签，不是具体错误类型。
type Kind int

const (
	// KindMalformed 表示字节无法按规范格式解码。
	KindMalformed Kind = iota
	// KindInvalid 表示已解码但违反了共识规则。
	KindInvalid
	// KindUnknownParent 表示区块合法但父区块尚未到达。
	KindUnknownParent
	// KindStale 表示合法但未延伸活动链尖且未构成更重的链。
	KindStale
	// KindTransient 表示IO、超时或对端断开，不计入有效性评分。
	KindTransient
	// KindCapacity 表示底层存储引擎报告磁盘已满。
	KindCapacity
	// KindNotFound 表示引用的摘要未知。
	KindNotFound
	// KindCorruption 表示引用的摘要缺失或批次部分可见。
	KindCorruption
	// KindFatal 表示存储损坏或状态机不变量被打破，必须停写。
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindInvalid:
		return "invalid"
	case KindUnknownParent:
		return "unknown-parent"
	case KindStale:
		return "stale"
	case KindTransient:
		return "transient"
	case KindCapacity:
		return "capacity"
	case KindNotFound:
		return "not-found"
	case KindCorruption:
		return "corruption"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error 包装了一个分类标签、组件来源和底层原因。
type Error struct {
	Kind      Kind
	Component string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Component, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Component, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建一个带分类的错误。
func New(kind Kind, component, msg string) *Error {
	return &Error{Kind: kind, Component: component, Msg: msg}
}

// Wrap 用分类和组件包装一个已有错误。
func Wrap(kind Kind, component, msg string, err error) *Error {
	return &Error{Kind: kind, Component: component, Msg: msg, Err: err}
}

// Is 判断err是否属于给定分类。
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf 提取err的分类，若不是*Error则返回KindFatal作为最保守的默认值。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
