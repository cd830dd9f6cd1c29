// Package clone produces deep copies of values recorded as originals, so a
// later in-place edit of the live value cannot reach the recorded baseline.
package clone

import "reflect"

// Any returns a deep copy of v. Pointers, maps, slices, arrays and exported
// struct fields are copied recursively; unexported fields, funcs and chans
// are shared. Pointer cycles are preserved rather than followed forever.
func Any(v any) any {
	if v == nil {
		return nil
	}
	out := cloneValue(reflect.ValueOf(v), map[uintptr]reflect.Value{})
	if !out.IsValid() {
		return nil
	}
	return out.Interface()
}

// Of is the typed form of Any.
func Of[T any](v T) T {
	out, ok := Any(v).(T)
	if !ok {
		return v
	}
	return out
}

func cloneValue(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		if done, ok := seen[v.Pointer()]; ok {
			return done
		}
		dup := reflect.New(v.Type().Elem())
		seen[v.Pointer()] = dup
		dup.Elem().Set(cloneValue(v.Elem(), seen))
		return dup
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem(), seen)
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(elem)
		return out
	case reflect.Struct:
		dup := reflect.New(v.Type()).Elem()
		dup.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := dup.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i), seen))
		}
		return dup
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		dup := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			dup.SetMapIndex(iter.Key(), cloneValue(iter.Value(), seen))
		}
		return dup
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		dup := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			dup.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return dup
	case reflect.Array:
		dup := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			dup.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return dup
	default:
		dup := reflect.New(v.Type()).Elem()
		dup.Set(v)
		return dup
	}
}
