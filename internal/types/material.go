package types

// Material is the recyclable material class claimed by the submitter
// and detected by the classifiers.
type Material string

const (
	MaterialCardboard Material = "cardboard"
	MaterialGlass     Material = "glass"
	MaterialMetal     Material = "metal"
	MaterialPaper     Material = "paper"
	MaterialPlastic   Material = "plastic"
)

var AllMaterials = []Material{
	MaterialCardboard,
	MaterialGlass,
	MaterialMetal,
	MaterialPaper,
	MaterialPlastic,
}

func (m Material) Valid() bool {
	switch m {
	case MaterialCardboard, MaterialGlass, MaterialMetal, MaterialPaper, MaterialPlastic:
		return true
	}
	return false
}
