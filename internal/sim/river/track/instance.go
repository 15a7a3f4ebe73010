package track

import (
	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
)

// Instance is a concrete piece handed back by an Instantiator. Anchor frames are local to the
// piece origin, primary anchor first.
type Instance struct {
	TemplateID string
	Starts     []geom.Transform
	Ends       []geom.Transform
	// Handle is owned by the Instantiator (renderer object, pool slot, ...).
	Handle any
}

// Instantiator creates the renderable/physical object for a template and returns its anchors.
// Release is called for every instance the track discards or evicts.
type Instantiator interface {
	Instantiate(t catalogs.PieceTemplate) (Instance, error)
	Release(inst Instance)
}

// TemplateInstantiator builds instances straight from catalog data.
type TemplateInstantiator struct{}

func (TemplateInstantiator) Instantiate(t catalogs.PieceTemplate) (Instance, error) {
	return InstanceFromAnchors(t.ID, t.Anchors)
}

func (TemplateInstantiator) Release(Instance) {}

// InstanceFromAnchors resolves start and end anchors by name. An instance that lacks either is
// returned alongside a GeometryError so the caller can release it.
func InstanceFromAnchors(id string, anchors []catalogs.Anchor) (Instance, error) {
	starts, ends := catalogs.ResolveAnchors(anchors)
	inst := Instance{TemplateID: id}
	for _, a := range starts {
		inst.Starts = append(inst.Starts, a.Local())
	}
	for _, a := range ends {
		inst.Ends = append(inst.Ends, a.Local())
	}
	switch {
	case len(inst.Starts) == 0 && len(inst.Ends) == 0:
		return inst, &GeometryError{TemplateID: id, Reason: "missing start and end anchors"}
	case len(inst.Starts) == 0:
		return inst, &GeometryError{TemplateID: id, Reason: "missing start anchor"}
	case len(inst.Ends) == 0:
		return inst, &GeometryError{TemplateID: id, Reason: "missing end anchor"}
	}
	return inst, nil
}
