package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindDuplicateKey
	KindStoreUnavailable
	KindUnauthorized
	KindForbidden
)

var kindNames = map[Kind]string{
	KindUnknown:          "UNKNOWN",
	KindValidation:       "VALIDATION",
	KindNotFound:         "NOT_FOUND",
	KindDuplicateKey:     "DUPLICATE_KEY",
	KindStoreUnavailable: "STORE_UNAVAILABLE",
	KindUnauthorized:     "UNAUTHORIZED",
	KindForbidden:        "FORBIDDEN",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Status 返回该类别对应的 HTTP 状态码
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateKey:
		return http.StatusConflict
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// 各类别的哨兵错误，配合 errors.Is 使用
var (
	ErrValidation       = &Error{Kind: KindValidation, Msg: "参数校验失败"}
	ErrNotFound         = &Error{Kind: KindNotFound, Msg: "记录不存在"}
	ErrDuplicateKey     = &Error{Kind: KindDuplicateKey, Msg: "唯一键冲突"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Msg: "存储不可用"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Msg: "未认证"}
	ErrForbidden        = &Error{Kind: KindForbidden, Msg: "无权限"}
)

// Error 带类别的业务错误
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 同类别即视为相等，使 errors.Is(err, ErrNotFound) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func Validation(msg string) *Error {
	return New(KindValidation, msg, nil)
}

func NotFound(msg string) *Error {
	return New(KindNotFound, msg, nil)
}

func DuplicateKey(msg string, cause error) *Error {
	return New(KindDuplicateKey, msg, cause)
}

func StoreUnavailable(msg string, cause error) *Error {
	return New(KindStoreUnavailable, msg, cause)
}

func Unauthorized(msg string) *Error {
	return New(KindUnauthorized, msg, nil)
}

func Forbidden(msg string) *Error {
	return New(KindForbidden, msg, nil)
}

// KindOf 取错误链上第一个 *Error 的类别
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

func IsDuplicateKey(err error) bool {
	return Is(err, KindDuplicateKey)
}

// HTTPStatus 错误对应的响应状态码，非业务错误一律 500
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}

// Message 面向调用方的错误信息，不暴露底层原因
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "服务器内部错误"
}
