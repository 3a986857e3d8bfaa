package config

import (
	"reflect"
)

// DeepMerge overlays src onto dst, field by field. Zero values in src
// leave dst alone, so a sparse config file only overrides what it
// mentions. Both arguments must be pointers to structs of the same type.
func DeepMerge(dst, src any) {
	dstVal := reflect.ValueOf(dst)
	srcVal := reflect.ValueOf(src)

	if dstVal.Kind() != reflect.Ptr || srcVal.Kind() != reflect.Ptr {
		return
	}

	mergeValues(dstVal.Elem(), srcVal.Elem())
}

func mergeValues(dst, src reflect.Value) {
	if !dst.CanSet() || !src.IsValid() {
		return
	}

	if dst.Kind() == reflect.Struct {
		for i := 0; i < dst.NumField(); i++ {
			mergeValues(dst.Field(i), src.Field(i))
		}
		return
	}

	if dst.IsZero() || !src.IsZero() {
		dst.Set(src)
	}
}
