package types

import (
	"encoding/json"
	"strconv"
)

// Design concepts --------------------------------------------------------------

type ImageRole string

const (
	RolePrimary   ImageRole = "primary"
	RoleArtistic  ImageRole = "artistic"
	RoleTechnical ImageRole = "technical"
)

// Derived reports whether images of this role are generated from the primary.
func (r ImageRole) Derived() bool {
	return r == RoleArtistic || r == RoleTechnical
}

// DesignImage is immutable; a slot update always installs a new value.
type DesignImage struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Role      ImageRole `json:"role"`
	ConceptID string    `json:"conceptId"`
	Media     Blob      `json:"-"`
	// SourceRevision is the primary revision a derivative was rendered from.
	SourceRevision int  `json:"sourceRevision"`
	Placeholder    bool `json:"placeholder,omitempty"`
}

type ConceptImages struct {
	Primary   *DesignImage `json:"primary,omitempty"`
	Artistic  *DesignImage `json:"artisticDerivative,omitempty"`
	Technical *DesignImage `json:"technicalDerivative,omitempty"`
}

func (ci ConceptImages) Get(role ImageRole) *DesignImage {
	switch role {
	case RolePrimary:
		return ci.Primary
	case RoleArtistic:
		return ci.Artistic
	case RoleTechnical:
		return ci.Technical
	}
	return nil
}

// With returns a copy with exactly one slot replaced.
func (ci ConceptImages) With(role ImageRole, img *DesignImage) ConceptImages {
	switch role {
	case RolePrimary:
		ci.Primary = img
	case RoleArtistic:
		ci.Artistic = img
	case RoleTechnical:
		ci.Technical = img
	}
	return ci
}

// Find locates an image of any role by id.
func (ci ConceptImages) Find(imageID string) *DesignImage {
	for _, img := range []*DesignImage{ci.Primary, ci.Artistic, ci.Technical} {
		if img != nil && img.ID == imageID {
			return img
		}
	}
	return nil
}

// RoleSet is a small set of image roles; it is a value type so concepts stay
// cheap to copy.
type RoleSet uint8

func roleBit(r ImageRole) RoleSet {
	switch r {
	case RolePrimary:
		return 1
	case RoleArtistic:
		return 2
	case RoleTechnical:
		return 4
	}
	return 0
}

func (s RoleSet) Has(r ImageRole) bool       { return s&roleBit(r) != 0 }
func (s RoleSet) Add(r ImageRole) RoleSet    { return s | roleBit(r) }
func (s RoleSet) Remove(r ImageRole) RoleSet { return s &^ roleBit(r) }

func (s RoleSet) Roles() []ImageRole {
	var out []ImageRole
	for _, r := range []ImageRole{RolePrimary, RoleArtistic, RoleTechnical} {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	roles := s.Roles()
	buf := []byte{'['}
	for i, r := range roles {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, r...)
		buf = append(buf, '"')
	}
	return append(buf, ']'), nil
}

func (s *RoleSet) UnmarshalJSON(b []byte) error {
	var roles []ImageRole
	if err := json.Unmarshal(b, &roles); err != nil {
		return err
	}
	*s = 0
	for _, r := range roles {
		*s = s.Add(r)
	}
	return nil
}

type DesignConcept struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Images      ConceptImages `json:"images"`
	// Revision increments on every committed primary change.
	Revision  int       `json:"revision"`
	Pending   RoleSet   `json:"pending"`
	TechPack  *TechPack `json:"techPack,omitempty"`
	Finalized bool      `json:"finalized"`
}

// Stale reports whether a present derivative was rendered from an older
// primary than the current one.
func (c DesignConcept) Stale(role ImageRole) bool {
	if !role.Derived() {
		return false
	}
	img := c.Images.Get(role)
	return img != nil && img.SourceRevision != c.Revision
}

// MediaURL is the presentation path for an image or runway asset. The
// version suffix changes whenever a slot is overwritten in place.
func MediaURL(id string, version int) string {
	return "/media/" + id + "?v=" + strconv.Itoa(version)
}
