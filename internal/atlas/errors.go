package atlas

import (
	"errors"
	"fmt"
)

var (
	// ErrMixedUV2 means some bakeable meshes carry authored atlas
	// coordinates while others need automatic layout.
	ErrMixedUV2 = errors.New("atlas: cannot mix meshes with authored uv2 and meshes needing auto layout")

	// ErrMissingAttribute means a mesh lacks data the layout needs.
	ErrMissingAttribute = errors.New("atlas: missing geometry attribute")
)

// DegenerateFaceError reports a zero-area triangle.
type DegenerateFaceError struct {
	Mesh string
	Face int
}

func (e *DegenerateFaceError) Error() string {
	return fmt.Sprintf("atlas: mesh %q face %d has zero area", e.Mesh, e.Face)
}

// SizeError reports a layout that does not fit the atlas.
type SizeError struct {
	RequiredW, RequiredH int
	// ProvidedW and ProvidedH are the fixed size, or the auto-size cap.
	ProvidedW, ProvidedH int
	Auto                 bool
}

func (e *SizeError) Error() string {
	if e.Auto {
		return fmt.Sprintf("atlas: layout needs %dx%d texels, more than the %dx%d maximum; lower texels_per_unit or reduce the baked face count",
			e.RequiredW, e.RequiredH, e.ProvidedW, e.ProvidedH)
	}
	return fmt.Sprintf("atlas: layout needs %dx%d texels but light_map_size is %dx%d; raise light_map_size or lower texels_per_unit",
		e.RequiredW, e.RequiredH, e.ProvidedW, e.ProvidedH)
}
