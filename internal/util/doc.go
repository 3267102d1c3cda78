// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the samchat front ends.
//
// String helpers are display-width aware (CJK and emoji count as two
// columns) so previews in the terminal views line up. AtomicWriteFile is
// used for every file the CLI writes on the user's behalf: config files,
// rendered HTML exports and the REPL history.
//
//	preview := util.TruncateWidth(title, 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
