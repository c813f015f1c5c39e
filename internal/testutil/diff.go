// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package testutil provides shared test-failure formatting: a unified
// diff between two values' pretty-printed representations, used by
// table-driven tests across the engine's packages.
package testutil

import (
	"github.com/kr/pretty"
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between the pretty-printed forms of got
// and want, or the empty string if they already print identically.
// Tests call this once on failure rather than dumping both values raw,
// since %#v on interval sets and registries is unreadable at a glance.
func Diff(got, want interface{}) string {
	a := pretty.Sprint(got)
	b := pretty.Sprint(want)
	if a == b {
		return ""
	}
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(b),
		B:        difflib.SplitLines(a),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return a + " != " + b
	}
	return text
}
