package extract

// Persona is an analysis personality that shapes how styles are extracted
// and compared. There is a single engineer persona today; the id parameter
// exists so more can be added without changing call sites.
type Persona struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ExtractionStyle string `json:"-"`
	ComparisonStyle string `json:"-"`
}

var styleEngineer = Persona{
	ID:              "style_engineer",
	Name:            "Architectural Style Engineer",
	Description:     "Strict structural & material fidelity. No creative deviations.",
	ExtractionStyle: "Perform a forensic architectural audit. Analyze scene physics, exact lighting temperature (Kelvin), material roughness maps, and strict geometric style. Ignore emotional narratives. Primary Goal: EXACT REPLICATION OF AESTHETIC.",
	ComparisonStyle: "Compare with zero tolerance for structural hallucinations. Verify that lighting physics, material properties, and geometric layouts match the reference exactly.",
}

// GetPersona resolves a persona id. Every id currently maps to the
// engineer.
func GetPersona(id string) Persona {
	return styleEngineer
}

func Personas() []Persona {
	return []Persona{styleEngineer}
}
