package formula

import (
	"math"
	"strconv"
	"strings"
)

// Value 单元格取值：nil（空）、float64、string 或 ErrorValue
type Value = any

// ErrorValue 公式求值失败时写入单元格的错误标记
type ErrorValue string

const (
	ErrDivZero ErrorValue = "#DIV/0!"
	ErrNA      ErrorValue = "#N/A"
	ErrValue   ErrorValue = "#VALUE!"
	ErrName    ErrorValue = "#NAME?"
	ErrRef     ErrorValue = "#REF!"
	ErrCycle   ErrorValue = "#CYCLE!"
	ErrSyntax  ErrorValue = "#ERROR!"
)

func (e ErrorValue) Error() string { return string(e) }

// IsError 判断取值是否为错误标记
func IsError(v Value) bool {
	_, ok := v.(ErrorValue)
	return ok
}

type kind int

const (
	kindEmpty kind = iota
	kindNumber
	kindText
	kindError
)

// classify 将单元格取值归类；数字字符串按数字处理
func classify(v Value) (kind, float64) {
	switch x := v.(type) {
	case nil:
		return kindEmpty, 0
	case float64:
		return kindNumber, x
	case float32:
		return kindNumber, float64(x)
	case int:
		return kindNumber, float64(x)
	case int64:
		return kindNumber, float64(x)
	case ErrorValue:
		return kindError, 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return kindEmpty, 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return kindNumber, f
		}
		return kindText, 0
	default:
		return kindText, 0
	}
}

// AsNumber 取值为有限数字时返回 true
func AsNumber(v Value) (float64, bool) {
	k, f := classify(v)
	return f, k == kindNumber
}
