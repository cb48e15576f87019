package pagekit

// SchemaVersion is stamped on every persisted PageData. Bump it when the
// default shape changes so stored documents can be told apart.
const SchemaVersion = 2

const defaultImageSize = "200px"

// DefaultPageData returns the fixed default document. Every call returns
// a fresh copy; callers may mutate it.
func DefaultPageData() PageData {
	return PageData{
		Hero: Hero{
			Title:       "Nina Multipotencial",
			Subtitle:    "Creadora de contenido UGC & Edición de Video Profesional",
			Description: "Transformo ideas en contenido visual impactante...",
		},
		About: About{Features: []string{}},
		PortfolioPage: PortfolioPage{
			Eyebrow:      "Seleccion de trabajos",
			HeroTitle:    "Portafolio en video",
			SectionTitle: "Reel de proyectos",
		},
		Services:     []Service{},
		Portfolio:    []PortfolioItem{},
		Testimonials: []Testimonial{},
		Colors: map[string]string{
			"primary":     "#667eea",
			"primaryDark": "#764ba2",
			"accent":      "#25d366",
			"textDark":    "#1a1a1a",
			"textLight":   "#666",
			"bgLight":     "#f5f7fa",
			"bgWhite":     "#ffffff",
			"contactBg":   "#ffffff",
			"bgCard":      "#ffffff",
			"borderColor": "#e0e0e0",
			"inputBg":     "#ffffff",
			"inputBorder": "#ddd",
			"navbarBg":    "rgba(255,255,255,0.95)",
			"navbarText":  "#1a1a1a",
		},
		Typography: map[string]string{
			"primaryFont": "'Poppins', sans-serif",
			"h1Size":      "48px",
			"h2Size":      "32px",
			"bodySize":    "16px",
			"fontWeight":  "400",
			"lineHeight":  "1.6",
		},
		SchemaVersion: SchemaVersion,
	}
}
