// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the attendance registry: which identities are in
// which space.
//
// The wire contract is small. POST {url}join with {"space","id"}
// records id as a member and answers {"ids": [...]} listing the members
// that were already there. POST {url}leave with the same body removes
// it. GET {url}spaces/{space} lists the members for inspection.
//
// [Client] speaks the contract. [Directory] is the in-memory membership
// table and [Server] exposes it over gin. Membership is not persisted;
// a restarted registry starts empty.
package registry
