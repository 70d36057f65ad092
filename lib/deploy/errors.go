// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a deploy failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadParameters
	KindNoStackfile
	KindNoAuxStackfile
	KindNoModule
	KindNoBanner
	KindNoLicenseAddons
	KindNoSpill
	KindNoPayload
	KindNoOutput
	KindNoMaskingKey
	KindBadCompress
	KindBadRead
	KindBadWrite
)

var kindText = map[ErrorKind]string{
	KindUnknown:         "unknown error",
	KindBadParameters:   "invalid build parameters",
	KindNoStackfile:     "could not open stackfile",
	KindNoAuxStackfile:  "could not open auxiliary stackfile",
	KindNoModule:        "could not open module",
	KindNoBanner:        "could not open banner stackfile",
	KindNoLicenseAddons: "could not read license add-ons",
	KindNoSpill:         "could not open spill file",
	KindNoPayload:       "could not open payload file",
	KindNoOutput:        "could not open output file",
	KindNoMaskingKey:    "could not load masking key",
	KindBadCompress:     "compression error",
	KindBadRead:         "i/o error while reading",
	KindBadWrite:        "i/o error while writing",
}

// String returns the human-readable description of k.
func (k ErrorKind) String() string {
	if text, ok := kindText[k]; ok {
		return text
	}
	return fmt.Sprintf("deploy error %d", int(k))
}

// Error is a classified deploy failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) ErrorKind {
	var deployErr *Error
	if errors.As(err, &deployErr) {
		return deployErr.Kind
	}
	return KindUnknown
}
