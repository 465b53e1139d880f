// Package taxonomy defines the closed vocabularies for instruction
// classification (work types, techniques, tools, kitchen roles, skill
// levels) and the validity rules over them. The corpus is defined in Go
// structures to avoid parsing fragility; derived indexes are built once at
// init. Pure data and pure functions — no I/O, no external calls.
package taxonomy

import "sort"

// =============================================================================
// WORK TYPES
// =============================================================================

// WorkTypes is the closed set of coarse activity categories.
var WorkTypes = []string{
	"prep", "cook", "setup", "rest", "assemble", "clean",
	"marinate", "mix", "monitor", "serve", "chill", "strain",
}

// =============================================================================
// SKILL LEVELS
// =============================================================================

const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// SkillLevels is ordered easiest-first.
var SkillLevels = []string{SkillBeginner, SkillIntermediate, SkillAdvanced}

// =============================================================================
// KITCHEN ROLES (brigade)
// =============================================================================

// Roles is the closed set of brigade-style role identifiers. home_cook is
// the default when no specialized role applies.
var Roles = []string{
	"home_cook", "prep_cook", "line_cook", "saucier", "rotisseur",
	"grillardin", "friturier", "poissonnier", "entremetier",
	"garde_manger", "patissier", "boulanger", "tournant", "expediter",
}

// DefaultRole is assigned when the classifier leaves roles empty.
const DefaultRole = "home_cook"

// =============================================================================
// TOOLS
// =============================================================================

// ToolDef ties a tool identifier to its equipment category.
type ToolDef struct {
	Name     string
	Category string
}

// Tool categories.
const (
	CategoryCutlery   = "cutlery"
	CategoryCookware  = "cookware"
	CategoryBakeware  = "bakeware"
	CategoryAppliance = "appliance"
	CategoryUtensil   = "utensil"
	CategoryMeasuring = "measuring"
	CategoryPrep      = "prep"
	CategoryServing   = "serving"
	CategorySpecialty = "specialty"
)

// DefaultToolData is the closed tool vocabulary across 9 categories.
var DefaultToolData = []ToolDef{
	// Cutlery
	{"chef_knife", CategoryCutlery},
	{"paring_knife", CategoryCutlery},
	{"serrated_knife", CategoryCutlery},
	{"boning_knife", CategoryCutlery},
	{"carving_knife", CategoryCutlery},
	{"kitchen_shears", CategoryCutlery},
	{"mandoline", CategoryCutlery},
	{"peeler", CategoryCutlery},

	// Cookware
	{"skillet", CategoryCookware},
	{"saute_pan", CategoryCookware},
	{"saucepan", CategoryCookware},
	{"stockpot", CategoryCookware},
	{"dutch_oven", CategoryCookware},
	{"wok", CategoryCookware},
	{"griddle", CategoryCookware},
	{"grill_pan", CategoryCookware},
	{"roasting_pan", CategoryCookware},
	{"double_boiler", CategoryCookware},

	// Bakeware
	{"sheet_pan", CategoryBakeware},
	{"cake_pan", CategoryBakeware},
	{"loaf_pan", CategoryBakeware},
	{"muffin_tin", CategoryBakeware},
	{"pie_dish", CategoryBakeware},
	{"springform_pan", CategoryBakeware},
	{"baking_dish", CategoryBakeware},
	{"cooling_rack", CategoryBakeware},
	{"ramekin", CategoryBakeware},

	// Appliances
	{"oven", CategoryAppliance},
	{"stovetop", CategoryAppliance},
	{"broiler", CategoryAppliance},
	{"grill", CategoryAppliance},
	{"microwave", CategoryAppliance},
	{"blender", CategoryAppliance},
	{"food_processor", CategoryAppliance},
	{"stand_mixer", CategoryAppliance},
	{"hand_mixer", CategoryAppliance},
	{"immersion_blender", CategoryAppliance},
	{"slow_cooker", CategoryAppliance},
	{"pressure_cooker", CategoryAppliance},
	{"rice_cooker", CategoryAppliance},
	{"deep_fryer", CategoryAppliance},
	{"sous_vide_circulator", CategoryAppliance},
	{"refrigerator", CategoryAppliance},
	{"freezer", CategoryAppliance},

	// Utensils
	{"spatula", CategoryUtensil},
	{"wooden_spoon", CategoryUtensil},
	{"slotted_spoon", CategoryUtensil},
	{"ladle", CategoryUtensil},
	{"tongs", CategoryUtensil},
	{"whisk", CategoryUtensil},
	{"fish_turner", CategoryUtensil},
	{"basting_brush", CategoryUtensil},
	{"rolling_pin", CategoryUtensil},
	{"potato_masher", CategoryUtensil},
	{"skewers", CategoryUtensil},

	// Measuring
	{"measuring_cups", CategoryMeasuring},
	{"measuring_spoons", CategoryMeasuring},
	{"kitchen_scale", CategoryMeasuring},
	{"instant_read_thermometer", CategoryMeasuring},
	{"oven_thermometer", CategoryMeasuring},
	{"candy_thermometer", CategoryMeasuring},
	{"timer", CategoryMeasuring},

	// Prep
	{"cutting_board", CategoryPrep},
	{"mixing_bowl", CategoryPrep},
	{"colander", CategoryPrep},
	{"fine_mesh_strainer", CategoryPrep},
	{"salad_spinner", CategoryPrep},
	{"box_grater", CategoryPrep},
	{"microplane", CategoryPrep},
	{"citrus_juicer", CategoryPrep},
	{"garlic_press", CategoryPrep},
	{"mortar_and_pestle", CategoryPrep},
	{"sieve", CategoryPrep},

	// Serving
	{"serving_platter", CategoryServing},
	{"serving_bowl", CategoryServing},
	{"carving_board", CategoryServing},
	{"trivet", CategoryServing},

	// Specialty
	{"pasta_machine", CategorySpecialty},
	{"pizza_stone", CategorySpecialty},
	{"bamboo_steamer", CategorySpecialty},
	{"cheesecloth", CategorySpecialty},
	{"kitchen_twine", CategorySpecialty},
	{"piping_bag", CategorySpecialty},
	{"bench_scraper", CategorySpecialty},
	{"offset_spatula", CategorySpecialty},
	{"pie_weights", CategorySpecialty},
}

// =============================================================================
// TECHNIQUES
// =============================================================================

// TechniqueDef defines one culinary technique with its typical work type,
// typical tools (used to backfill under-specified LLM output), typical
// roles, and baseline skill level.
type TechniqueDef struct {
	Name     string
	WorkType string   // most common work type for this technique
	Tools    []string // typical tools; every entry must be in DefaultToolData
	Roles    []string // typical brigade roles; every entry must be in Roles
	Skill    string   // baseline skill level
}

// DefaultTechniqueData is the closed technique vocabulary.
var DefaultTechniqueData = []TechniqueDef{
	// Knife work
	{"dice", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"mince", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"chop", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"slice", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"julienne", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillIntermediate},
	{"brunoise", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillAdvanced},
	{"chiffonade", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillIntermediate},
	{"butterfly", "prep", []string{"boning_knife", "cutting_board"}, []string{"garde_manger"}, SkillIntermediate},
	{"debone", "prep", []string{"boning_knife", "cutting_board"}, []string{"garde_manger"}, SkillAdvanced},
	{"fillet", "prep", []string{"boning_knife", "cutting_board"}, []string{"poissonnier"}, SkillAdvanced},
	{"carve", "serve", []string{"carving_knife", "carving_board"}, []string{"rotisseur"}, SkillIntermediate},
	{"score", "prep", []string{"paring_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"trim", "prep", []string{"chef_knife", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"peel", "prep", []string{"peeler", "cutting_board"}, []string{"prep_cook"}, SkillBeginner},
	{"zest", "prep", []string{"microplane"}, []string{"prep_cook"}, SkillBeginner},
	{"supreme", "prep", []string{"paring_knife", "cutting_board"}, []string{"garde_manger"}, SkillAdvanced},
	{"shave", "prep", []string{"mandoline"}, []string{"prep_cook"}, SkillIntermediate},

	// Dry heat
	{"sear", "cook", []string{"skillet", "tongs", "stovetop"}, []string{"saucier", "line_cook"}, SkillIntermediate},
	{"saute", "cook", []string{"saute_pan", "spatula", "stovetop"}, []string{"saucier", "line_cook"}, SkillIntermediate},
	{"stir_fry", "cook", []string{"wok", "spatula", "stovetop"}, []string{"line_cook"}, SkillIntermediate},
	{"pan_fry", "cook", []string{"skillet", "fish_turner", "stovetop"}, []string{"line_cook"}, SkillBeginner},
	{"deep_fry", "cook", []string{"deep_fryer", "slotted_spoon", "candy_thermometer"}, []string{"friturier"}, SkillIntermediate},
	{"shallow_fry", "cook", []string{"skillet", "tongs", "stovetop"}, []string{"friturier", "line_cook"}, SkillBeginner},
	{"roast", "cook", []string{"oven", "roasting_pan"}, []string{"rotisseur"}, SkillBeginner},
	{"bake", "cook", []string{"oven"}, []string{"patissier", "boulanger"}, SkillBeginner},
	{"broil", "cook", []string{"broiler", "sheet_pan"}, []string{"rotisseur"}, SkillIntermediate},
	{"grill", "cook", []string{"grill", "tongs"}, []string{"grillardin"}, SkillIntermediate},
	{"toast", "cook", []string{"oven", "sheet_pan"}, []string{"line_cook"}, SkillBeginner},
	{"char", "cook", []string{"grill", "tongs"}, []string{"grillardin"}, SkillIntermediate},
	{"blacken", "cook", []string{"skillet", "stovetop"}, []string{"line_cook"}, SkillAdvanced},

	// Moist heat
	{"boil", "cook", []string{"stockpot", "stovetop"}, []string{"entremetier"}, SkillBeginner},
	{"simmer", "cook", []string{"saucepan", "stovetop"}, []string{"saucier"}, SkillBeginner},
	{"poach", "cook", []string{"saucepan", "slotted_spoon", "stovetop"}, []string{"poissonnier", "saucier"}, SkillIntermediate},
	{"steam", "cook", []string{"bamboo_steamer", "stockpot", "stovetop"}, []string{"entremetier"}, SkillBeginner},
	{"blanch", "cook", []string{"stockpot", "slotted_spoon", "mixing_bowl"}, []string{"entremetier", "prep_cook"}, SkillBeginner},
	{"braise", "cook", []string{"dutch_oven", "oven"}, []string{"saucier"}, SkillIntermediate},
	{"stew", "cook", []string{"dutch_oven", "wooden_spoon", "stovetop"}, []string{"saucier"}, SkillBeginner},
	{"pressure_cook", "cook", []string{"pressure_cooker"}, []string{"entremetier"}, SkillIntermediate},
	{"sous_vide", "cook", []string{"sous_vide_circulator", "stockpot"}, []string{"saucier"}, SkillIntermediate},
	{"scald", "cook", []string{"saucepan", "stovetop"}, []string{"saucier"}, SkillBeginner},
	{"reduce", "cook", []string{"saucepan", "wooden_spoon", "stovetop"}, []string{"saucier"}, SkillIntermediate},
	{"deglaze", "cook", []string{"skillet", "wooden_spoon", "stovetop"}, []string{"saucier"}, SkillIntermediate},

	// Mixing and dough
	{"fold", "mix", []string{"spatula", "mixing_bowl"}, []string{"patissier"}, SkillIntermediate},
	{"whip", "mix", []string{"whisk", "mixing_bowl"}, []string{"patissier"}, SkillBeginner},
	{"whisk", "mix", []string{"whisk", "mixing_bowl"}, []string{"home_cook"}, SkillBeginner},
	{"beat", "mix", []string{"hand_mixer", "mixing_bowl"}, []string{"patissier"}, SkillBeginner},
	{"cream", "mix", []string{"stand_mixer", "mixing_bowl"}, []string{"patissier"}, SkillIntermediate},
	{"knead", "mix", []string{"mixing_bowl"}, []string{"boulanger"}, SkillIntermediate},
	{"stir", "mix", []string{"wooden_spoon"}, []string{"home_cook"}, SkillBeginner},
	{"toss", "mix", []string{"mixing_bowl", "tongs"}, []string{"home_cook"}, SkillBeginner},
	{"emulsify", "mix", []string{"whisk", "mixing_bowl"}, []string{"saucier"}, SkillAdvanced},
	{"blend", "mix", []string{"blender"}, []string{"home_cook"}, SkillBeginner},
	{"puree", "mix", []string{"food_processor"}, []string{"entremetier"}, SkillBeginner},
	{"mash", "mix", []string{"potato_masher", "mixing_bowl"}, []string{"entremetier"}, SkillBeginner},

	// Baking and pastry
	{"proof", "rest", []string{"mixing_bowl"}, []string{"boulanger"}, SkillIntermediate},
	{"laminate", "prep", []string{"rolling_pin", "bench_scraper"}, []string{"patissier"}, SkillAdvanced},
	{"temper", "cook", []string{"double_boiler", "candy_thermometer"}, []string{"patissier"}, SkillAdvanced},
	{"caramelize", "cook", []string{"saucepan", "stovetop"}, []string{"patissier", "saucier"}, SkillAdvanced},
	{"glaze", "assemble", []string{"basting_brush"}, []string{"patissier"}, SkillIntermediate},
	{"frost", "assemble", []string{"offset_spatula"}, []string{"patissier"}, SkillIntermediate},
	{"pipe", "assemble", []string{"piping_bag"}, []string{"patissier"}, SkillAdvanced},
	{"dust", "assemble", []string{"sieve"}, []string{"patissier"}, SkillBeginner},
	{"crimp", "prep", []string{"pie_dish"}, []string{"patissier"}, SkillIntermediate},
	{"blind_bake", "cook", []string{"oven", "pie_dish", "pie_weights"}, []string{"patissier"}, SkillIntermediate},
	{"roll_out", "prep", []string{"rolling_pin", "bench_scraper"}, []string{"patissier", "boulanger"}, SkillIntermediate},

	// Cures, rests, and cold work
	{"marinate", "marinate", []string{"mixing_bowl", "refrigerator"}, []string{"garde_manger"}, SkillBeginner},
	{"brine", "marinate", []string{"stockpot", "refrigerator"}, []string{"garde_manger"}, SkillIntermediate},
	{"cure", "marinate", []string{"refrigerator"}, []string{"garde_manger"}, SkillAdvanced},
	{"rest", "rest", nil, []string{"home_cook"}, SkillBeginner},
	{"chill", "chill", []string{"refrigerator"}, []string{"home_cook"}, SkillBeginner},
	{"freeze", "chill", []string{"freezer"}, []string{"home_cook"}, SkillBeginner},
	{"render", "cook", []string{"skillet", "stovetop"}, []string{"saucier"}, SkillIntermediate},
	{"smoke", "cook", []string{"grill"}, []string{"grillardin"}, SkillAdvanced},

	// Finishing and misc prep
	{"strain", "strain", []string{"fine_mesh_strainer"}, []string{"prep_cook"}, SkillBeginner},
	{"drain", "strain", []string{"colander"}, []string{"home_cook"}, SkillBeginner},
	{"sift", "prep", []string{"sieve", "mixing_bowl"}, []string{"patissier"}, SkillBeginner},
	{"grate", "prep", []string{"box_grater"}, []string{"prep_cook"}, SkillBeginner},
	{"shred", "prep", []string{"box_grater"}, []string{"prep_cook"}, SkillBeginner},
	{"juice", "prep", []string{"citrus_juicer"}, []string{"prep_cook"}, SkillBeginner},
	{"measure", "prep", []string{"measuring_cups", "measuring_spoons"}, []string{"home_cook"}, SkillBeginner},
	{"season", "prep", nil, []string{"home_cook"}, SkillBeginner},
	{"baste", "monitor", []string{"basting_brush"}, []string{"rotisseur"}, SkillBeginner},
	{"truss", "prep", []string{"kitchen_twine"}, []string{"rotisseur"}, SkillIntermediate},
	{"stuff", "assemble", []string{"mixing_bowl"}, []string{"garde_manger"}, SkillIntermediate},
	{"skim", "monitor", []string{"ladle"}, []string{"saucier"}, SkillBeginner},
	{"garnish", "serve", []string{"paring_knife"}, []string{"garde_manger"}, SkillBeginner},
	{"plate", "serve", []string{"serving_platter"}, []string{"expediter"}, SkillBeginner},
}

// =============================================================================
// TEMPERATURE VOCABULARY
// =============================================================================

// TemperatureUnits and TemperatureTypes bound the optional thermal record.
var (
	TemperatureUnits = []string{"F", "C"}
	TemperatureTypes = []string{"oven_preheat", "surface", "liquid", "storage"}
)

// =============================================================================
// DERIVED INDEXES
// =============================================================================

var (
	workTypeSet  map[string]bool
	skillSet     map[string]bool
	roleSet      map[string]bool
	toolSet      map[string]ToolDef
	techniqueSet map[string]TechniqueDef
	tempUnitSet  map[string]bool
	tempTypeSet  map[string]bool
)

func init() {
	workTypeSet = make(map[string]bool, len(WorkTypes))
	for _, w := range WorkTypes {
		workTypeSet[w] = true
	}
	skillSet = make(map[string]bool, len(SkillLevels))
	for _, s := range SkillLevels {
		skillSet[s] = true
	}
	roleSet = make(map[string]bool, len(Roles))
	for _, r := range Roles {
		roleSet[r] = true
	}
	toolSet = make(map[string]ToolDef, len(DefaultToolData))
	for _, t := range DefaultToolData {
		toolSet[t.Name] = t
	}
	techniqueSet = make(map[string]TechniqueDef, len(DefaultTechniqueData))
	for _, t := range DefaultTechniqueData {
		techniqueSet[t.Name] = t
	}
	tempUnitSet = make(map[string]bool, len(TemperatureUnits))
	for _, u := range TemperatureUnits {
		tempUnitSet[u] = true
	}
	tempTypeSet = make(map[string]bool, len(TemperatureTypes))
	for _, t := range TemperatureTypes {
		tempTypeSet[t] = true
	}
}

// IsWorkType reports whether w is a member of the work type vocabulary.
func IsWorkType(w string) bool { return workTypeSet[w] }

// IsSkillLevel reports whether s is a member of the skill level vocabulary.
func IsSkillLevel(s string) bool { return skillSet[s] }

// IsRole reports whether r is a member of the role vocabulary.
func IsRole(r string) bool { return roleSet[r] }

// IsTool reports whether t is a member of the tool vocabulary.
func IsTool(t string) bool { _, ok := toolSet[t]; return ok }

// IsTechnique reports whether t is a member of the technique vocabulary.
func IsTechnique(t string) bool { _, ok := techniqueSet[t]; return ok }

// IsTemperatureUnit reports whether u is F or C.
func IsTemperatureUnit(u string) bool { return tempUnitSet[u] }

// IsTemperatureType reports whether t is a recognized thermal target type.
func IsTemperatureType(t string) bool { return tempTypeSet[t] }

// ToolCategory returns the equipment category for a known tool, or "".
func ToolCategory(tool string) string {
	return toolSet[tool].Category
}

// ToolsForTechnique returns the typical tools for a technique, used to
// backfill under-specified LLM output. Returns nil for unknown techniques
// and for techniques with no typical tool (e.g. rest, season).
func ToolsForTechnique(technique string) []string {
	def, ok := techniqueSet[technique]
	if !ok {
		return nil
	}
	out := make([]string, len(def.Tools))
	copy(out, def.Tools)
	return out
}

// RolesForTechnique returns the typical brigade roles for a technique, or
// nil for unknown techniques.
func RolesForTechnique(technique string) []string {
	def, ok := techniqueSet[technique]
	if !ok {
		return nil
	}
	out := make([]string, len(def.Roles))
	copy(out, def.Roles)
	return out
}

// WorkTypeForTechnique returns the most common work type for a technique,
// or "" for unknown techniques.
func WorkTypeForTechnique(technique string) string {
	return techniqueSet[technique].WorkType
}

// SkillForTechnique returns the baseline skill level for a technique, or
// "" for unknown techniques.
func SkillForTechnique(technique string) string {
	return techniqueSet[technique].Skill
}

// TechniqueNames returns all technique identifiers, sorted.
func TechniqueNames() []string {
	names := make([]string, 0, len(techniqueSet))
	for name := range techniqueSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolNames returns all tool identifiers, sorted.
func ToolNames() []string {
	names := make([]string, 0, len(toolSet))
	for name := range toolSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
