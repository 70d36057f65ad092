// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Lcdeploy builds and examines standalone projects.
//
// A project is the size-prefixed, compressed capsule of stacks,
// modules and settings a standalone engine loads at startup. Build
// writes one from a YAML parameters file; inspect, verify and extract
// read one back the way the engine does.
//
//	lcdeploy build --params deploy.yaml
//	lcdeploy inspect app.bin --offset 4096
//	lcdeploy verify app.bin --mask-key mask.key
//	lcdeploy extract app.bin --type main_stack --out main.livecode
package main
