// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package id generates random base62 identifiers.
package id

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

// DefaultLength is the number of random base62 characters in an id.
const DefaultLength = 20

// New generates an id of DefaultLength random characters with an optional
// prefix, separated by an underscore.
func New(optionalPrefix string) (string, error) {
	return NewWithLength(DefaultLength, optionalPrefix)
}

// NewWithLength is New with a caller chosen number of random characters.
func NewWithLength(length int, optionalPrefix string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("id.NewWithLength: invalid length %d", length)
	}
	id, err := base62.Random(length)
	if err != nil {
		return "", fmt.Errorf("id.NewWithLength: unable to generate id: %w", err)
	}
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	}
	return id, nil
}
