/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package handoff passes exported artifacts to another feature through a
// short-lived, read-once channel keyed by a string tag.
package handoff

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/clipdeck/internal/media"
)

// DefaultTTL bounds how long an unclaimed descriptor is kept.
const DefaultTTL = 5 * time.Minute

// Role is an optional side-channel tag telling the consumer where the
// artifact belongs.
type Role string

const (
	RoleNone  Role = ""
	RoleLeft  Role = "left"
	RoleRight Role = "right"
)

var (
	ErrInvalidTag  = errors.New("invalid hand-off tag")
	ErrInvalidRole = errors.New("invalid hand-off role")
	ErrBadPayload  = errors.New("hand-off payload is not valid base64")
)

// ParseRole validates a role string. Empty means no role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleNone, RoleLeft, RoleRight:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Descriptor is the serialized form of an artifact waiting for pickup.
type Descriptor struct {
	Name      string    `json:"name"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	Payload   string    `json:"payload"`
	Role      Role      `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromArtifact encodes an artifact into a descriptor.
func FromArtifact(a *media.Artifact, role Role) *Descriptor {
	return &Descriptor{
		Name:      a.Name,
		MIMEType:  a.MIMEType,
		Size:      a.Size(),
		Payload:   base64.StdEncoding.EncodeToString(a.Data),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}

// Artifact decodes the payload back into an artifact.
func (d *Descriptor) Artifact() (*media.Artifact, error) {
	data, err := base64.StdEncoding.DecodeString(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return &media.Artifact{Name: d.Name, MIMEType: d.MIMEType, Data: data}, nil
}

// Channel is a one-shot store. TakeOnce deletes what it returns so a
// descriptor can never be replayed.
type Channel interface {
	Put(ctx context.Context, tag string, d *Descriptor) error
	TakeOnce(ctx context.Context, tag string) (*Descriptor, bool, error)
}

// ValidateTag rejects empty tags and tags with whitespace or separators.
func ValidateTag(tag string) error {
	if tag == "" || len(tag) > 128 || strings.ContainsAny(tag, " \t\r\n/\\:") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	return nil
}
