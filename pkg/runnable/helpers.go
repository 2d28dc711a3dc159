package runnable

import (
	"fmt"
	"reflect"
)

func typeMismatch[T any](input any) string {
	return fmt.Sprintf("expected %v, got %T", reflect.TypeFor[T](), input)
}

func unitNames(units []Runnable) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name()
	}
	return names
}
