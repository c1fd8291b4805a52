// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package envknob

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLookups(t *testing.T) {
	t.Setenv("MTX_TEST_INT", "64")
	t.Setenv("MTX_TEST_DUR", "250us")

	if v, ok := LookupInt("MTX_TEST_INT"); v != 64 || !ok {
		t.Errorf("LookupInt = %v, %v; want 64, true", v, ok)
	}
	if v, ok := LookupDuration("MTX_TEST_DUR"); v != 250*time.Microsecond || !ok {
		t.Errorf("LookupDuration = %v, %v; want 250µs, true", v, ok)
	}
	if _, ok := LookupDuration("MTX_TEST_UNSET"); ok {
		t.Error("LookupDuration of unset variable reported ok")
	}
	if _, ok := LookupInt("MTX_TEST_UNSET"); ok {
		t.Error("LookupInt of unset variable reported ok")
	}
}

func TestRegisterBoolFollowsSetenv(t *testing.T) {
	t.Setenv("MTX_TEST_REG", "") // restore on cleanup
	get := RegisterBool("MTX_TEST_REG")
	if get() {
		t.Fatal("registered bool true before Setenv")
	}
	Setenv("MTX_TEST_REG", "true")
	if !get() {
		t.Fatal("registered bool not updated by Setenv")
	}
	Setenv("MTX_TEST_REG", "0")
	if get() {
		t.Fatal("registered bool still true after Setenv to 0")
	}
	Setenv("MTX_TEST_REG", "")
}

func TestLogCurrent(t *testing.T) {
	t.Setenv("MTX_TEST_LOGGED", "")
	Setenv("MTX_TEST_LOGGED", "yes")
	defer Setenv("MTX_TEST_LOGGED", "")

	var lines []string
	LogCurrent(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, `envknob: MTX_TEST_LOGGED="yes"`) {
		t.Errorf("LogCurrent output missing knob:\n%s", joined)
	}
}
