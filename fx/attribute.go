// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FetchAttr resolves a dotted attribute path against root, typically the
// owner module of a traced graph. Each segment selects a struct field by
// name, a map entry by key (string-keyed maps), or a slice/array element by
// index; pointers and interfaces are dereferenced transparently.
//
// It returns the resolved value -- e.g., the sub-module instance a
// call_module node's target refers to. If a segment cannot be resolved the
// error names it, along with the portion of the path resolved so far.
func FetchAttr(root any, target string) (any, error) {
	if root == nil {
		return nil, errors.Errorf("fx: FetchAttr(%q): root is nil", target)
	}
	atoms := strings.Split(target, ".")
	current := reflect.ValueOf(root)
	for ii, atom := range atoms {
		for current.Kind() == reflect.Pointer || current.Kind() == reflect.Interface {
			if current.IsNil() {
				return nil, segmentError(target, atoms, ii)
			}
			current = current.Elem()
		}
		switch current.Kind() {
		case reflect.Struct:
			field := current.FieldByName(atom)
			if !field.IsValid() {
				return nil, segmentError(target, atoms, ii)
			}
			current = field
		case reflect.Map:
			if current.Type().Key().Kind() != reflect.String {
				return nil, segmentError(target, atoms, ii)
			}
			entry := current.MapIndex(reflect.ValueOf(atom))
			if !entry.IsValid() {
				return nil, segmentError(target, atoms, ii)
			}
			current = entry
		case reflect.Slice, reflect.Array:
			idx, err := strconv.Atoi(atom)
			if err != nil || idx < 0 || idx >= current.Len() {
				return nil, segmentError(target, atoms, ii)
			}
			current = current.Index(idx)
		default:
			return nil, segmentError(target, atoms, ii)
		}
	}
	if !current.CanInterface() {
		return nil, errors.Errorf("fx: FetchAttr(%q): resolved attribute is unexported", target)
	}
	return current.Interface(), nil
}

func segmentError(target string, atoms []string, ii int) error {
	return errors.Errorf("fx: attribute path %q references nonexistent segment %q (resolved up to %q)",
		target, atoms[ii], strings.Join(atoms[:ii], "."))
}
