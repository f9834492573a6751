// Package validation holds constructor-time contract checks.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if ptr is nil. Use it for mandatory pointer
// dependencies in constructors; runtime failures must return errors instead.
//
//	validation.AssertNotNil(pool, "database pool")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertPresent panics if v is nil, including an interface holding a typed
// nil pointer, map, func or channel.
func AssertPresent(v any, name string) {
	if isNil(v) {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
