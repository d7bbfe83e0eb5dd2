// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

// Package models defines the normalized data model shared by the catalog,
// the platform adapters, and the scheduler: Platform and StreamStatus
// enumerations, Channel and Stream rows, the ephemeral StreamUpdate, and the
// engagement rows (follows, reports, API usage audit).
//
// The package has no dependencies beyond uuid and the standard library.
// Platform adapters translate upstream payloads into these types at their
// boundary; nothing upstream-shaped crosses into the rest of the system.
package models
