// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build !mtx_panic_on_misuse

package mtx

const panicOnMisuse = false
