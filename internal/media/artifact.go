/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

// Artifact is a produced output file. The caller owns it once returned.
type Artifact struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// AsArtifact returns the source unchanged as an artifact (no transcoding).
func (s *Source) AsArtifact() *Artifact {
	return &Artifact{
		Name:     s.Name,
		MIMEType: s.MIMEType,
		Data:     s.Data,
	}
}

// OutputName builds "<basename>.<ext>" for an exported file.
func OutputName(sourceName, ext string) string {
	return BaseName(sourceName) + "." + ext
}
