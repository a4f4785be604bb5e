// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated,
// e.g. an already-taken username or a colliding token hash.
var ErrDuplicate = errors.New("duplicate record")

// ErrStoreUnavailable is returned by store adapters after bounded retries
// against a failing backend are exhausted. Callers must fail closed.
var ErrStoreUnavailable = errors.New("store unavailable")
