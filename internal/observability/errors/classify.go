// Package errors turns errors into short labels for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Classify returns a low-cardinality label for err. Context cancellation and
// deadlines get fixed names; anything else is named after the innermost
// concrete type, e.g. "pgconn_pgerror".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
