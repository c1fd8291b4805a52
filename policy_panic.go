// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// This file makes usage errors panic by default, for debug and test builds.
// It is used when the build tag mtx_panic_on_misuse is set.

//go:build mtx_panic_on_misuse

package mtx

const panicOnMisuse = true
