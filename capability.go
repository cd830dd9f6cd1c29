package track

import "reflect"

// Tracker returns the tracking capability of v. It fails for the plain
// values held by excluded members, which are never wrapped.
func Tracker(v any) (ChangeTrackable, bool) {
	ct, ok := v.(ChangeTrackable)
	if !ok {
		return nil, false
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}
	return ct, true
}

// CollectionOf returns v as a tracked collection of E. Members whose element
// type is excluded hold a plain []*E and fail the cast.
func CollectionOf[E any](v any) (*Collection[E], bool) {
	c, ok := v.(*Collection[E])
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// ObjectOf returns v as a tracked object of T.
func ObjectOf[T any](v any) (*Object[T], bool) {
	o, ok := v.(*Object[T])
	if !ok || o == nil {
		return nil, false
	}
	return o, true
}
