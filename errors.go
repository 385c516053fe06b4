/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package Georef

import (
	"errors"
	"fmt"
)

// Kind 错误类别标记，所有类别都是可比较的哨兵值，可配合 errors.Is 使用
type Kind interface {
	error
	isKind()
}

type kind struct{ s string }

func (k kind) Error() string { return k.s }
func (k kind) isKind()       {}

// NewKind 创建新的错误类别
func NewKind(name string) Kind { return kind{s: name} }

var (
	// ErrNotFound 文件、图层或控制点文件不存在
	ErrNotFound = NewKind("NOT_FOUND")
	// ErrFormat 控制点文件或容器文件格式错误
	ErrFormat = NewKind("FORMAT")
	// ErrDegenerateInput 控制点不足3个或点位共线，无法求解唯一的仿射变换
	ErrDegenerateInput = NewKind("DEGENERATE_INPUT")
	// ErrSchemaMismatch 待合并图层的字段结构或坐标系不一致
	ErrSchemaMismatch = NewKind("SCHEMA_MISMATCH")
)

// Error 带类别的错误，可同时包装底层原因
//
// errors.Is(err, ErrNotFound) 匹配类别，errors.Is(err, os.ErrNotExist) 匹配原因。
type Error struct {
	kind Kind
	err  error
	msg  string
}

// With 创建指定类别的错误
func With(k Kind, msgFmt string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(msgFmt, args...)}
}

// Wrap 创建指定类别的错误并包装原因
func Wrap(k Kind, cause error, msgFmt string, args ...any) *Error {
	return &Error{kind: k, err: cause, msg: fmt.Sprintf(msgFmt, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	case e.kind != nil:
		return e.kind.Error()
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error { return e.err }

// Is 同时匹配类别哨兵与被包装的原因
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return e == nil && target == nil
	}
	if e.kind != nil && errors.Is(e.kind, target) {
		return true
	}
	return e.err != nil && errors.Is(e.err, target)
}

// As 同时支持类别哨兵与被包装原因的类型断言
func (e *Error) As(target any) bool {
	if e == nil || target == nil {
		return false
	}
	if e.kind != nil && errors.As(e.kind, target) {
		return true
	}
	return e.err != nil && errors.As(e.err, target)
}

// Kind 返回错误类别
func (e *Error) Kind() Kind { return e.kind }

// Message 返回附加说明
func (e *Error) Message() string { return e.msg }

// Cause 返回被包装的原因，可能为nil
func (e *Error) Cause() error { return e.err }

// KindOf 返回错误链上第一个 *Error 的类别，没有时返回nil
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return nil
}
