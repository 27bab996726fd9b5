package domstyle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Palette holds the colour and typography values rules are built from.
type Palette struct {
	Name            string `yaml:"name"`
	Primary         string `yaml:"primary"`
	PrimaryHover    string `yaml:"primary_hover"`
	Background      string `yaml:"background"`
	Surface         string `yaml:"surface"`
	SurfaceGradient string `yaml:"surface_gradient"`
	Border          string `yaml:"border"`
	Text            string `yaml:"text"`
	UserAccent      string `yaml:"user_accent"`
	FontFamily      string `yaml:"font_family"`
	BorderRadius    string `yaml:"border_radius"`
	ContainerMargin string `yaml:"container_margin"`
	InputPadding    string `yaml:"input_padding"`
}

// HappyHues is the default palette.
func HappyHues() Palette {
	return Palette{
		Name:            "happy_hues",
		Primary:         "#7f5af0",
		PrimaryHover:    "#6a48d7",
		Background:      "#16161a",
		Surface:         "#242629",
		SurfaceGradient: "linear-gradient(135deg, #242629, #2e3035)",
		Border:          "#2e3035",
		Text:            "#fffffe",
		UserAccent:      "#ffd803",
		FontFamily:      "'Geist Mono', monospace",
		BorderRadius:    "0.75rem",
		ContainerMargin: "1.25rem",
		InputPadding:    "0.5rem",
	}
}

// Palettes returns the built-in palettes keyed by name.
func Palettes() map[string]Palette {
	hh := HappyHues()

	def := hh
	def.Name = "default"
	def.Primary, def.PrimaryHover = "#00E5A0", "#00C88A"
	def.Background, def.Surface, def.Border = "#0A0C0F", "#141820", "#202830"
	def.SurfaceGradient = "linear-gradient(135deg, #141820, #202830)"
	def.Text, def.UserAccent = "#F2F2F2", "#E54C00"

	blue := hh
	blue.Name = "blue"
	blue.Primary, blue.PrimaryHover = "#3B82F6", "#2563EB"
	blue.Background, blue.Surface, blue.Border = "#0F172A", "#1E293B", "#334155"
	blue.SurfaceGradient = "linear-gradient(135deg, #1E293B, #334155)"
	blue.Text, blue.UserAccent = "#F1F5F9", "#F59E0B"

	purple := hh
	purple.Name = "purple"
	purple.Primary, purple.PrimaryHover = "#8B5CF6", "#7C3AED"
	purple.Background, purple.Surface, purple.Border = "#0F0720", "#1E1033", "#33204D"
	purple.SurfaceGradient = "linear-gradient(135deg, #1E1033, #33204D)"
	purple.Text, purple.UserAccent = "#F5F3FF", "#F59E0B"

	return map[string]Palette{
		hh.Name:     hh,
		def.Name:    def,
		blue.Name:   blue,
		purple.Name: purple,
	}
}

// fill copies every empty field from base.
func (p *Palette) fill(base Palette) {
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&p.Name, base.Name)
	set(&p.Primary, base.Primary)
	set(&p.PrimaryHover, base.PrimaryHover)
	set(&p.Background, base.Background)
	set(&p.Surface, base.Surface)
	set(&p.SurfaceGradient, base.SurfaceGradient)
	set(&p.Border, base.Border)
	set(&p.Text, base.Text)
	set(&p.UserAccent, base.UserAccent)
	set(&p.FontFamily, base.FontFamily)
	set(&p.BorderRadius, base.BorderRadius)
	set(&p.ContainerMargin, base.ContainerMargin)
	set(&p.InputPadding, base.InputPadding)
}

// Registry is the read-only table of style rules. It is safe for concurrent
// use because nothing mutates it after construction.
type Registry struct {
	palette Palette
	rules   []Rule
}

// NewRegistry builds the rule table from a palette. Empty palette fields
// fall back to HappyHues.
func NewRegistry(p Palette) *Registry {
	p.fill(HappyHues())
	noEdge := Properties{"border": "none", "box-shadow": "none"}

	rules := []Rule{
		{
			Role:       GlobalFontOverride,
			Selector:   MustParse("body *"),
			Properties: Properties{"font-family": p.FontFamily},
		},
		{
			Role:       UserAvatar,
			Selector:   MustParse(`[data-testid="stChatMessageAvatar"][data-avatar-for-user="true"]`),
			Properties: noEdge.Merge(Properties{"background-color": p.UserAccent}),
		},
		{
			Role:       AssistantAvatar,
			Selector:   MustParse(`[data-testid="stChatMessageAvatar"]:not([data-avatar-for-user="true"])`),
			Properties: noEdge.Merge(Properties{"background-color": p.Primary}),
		},
		{
			Role:       AvatarIcon,
			Selector:   MustParse(`[data-testid="stChatMessageAvatar"] svg`),
			Properties: Properties{"fill": p.Background},
		},
		{
			Role:     ChatMessageContainer,
			Selector: MustParse(".stChatMessage"),
			Properties: Properties{
				"background":    p.SurfaceGradient,
				"border":        "1px solid " + p.Border,
				"border-radius": p.BorderRadius,
				"margin-bottom": p.ContainerMargin,
			},
		},
		{
			Role:     ChatInputContainer,
			Selector: MustParse(".stChatInputContainer"),
			Properties: Properties{
				"background-color": p.Surface,
				"border":           "1px solid " + p.Border,
				"border-radius":    p.BorderRadius,
				"padding":          p.InputPadding,
			},
		},
		{
			Role:     ChatInputControl,
			Selector: MustParse(".stChatInputContainer textarea"),
			Properties: Properties{
				"background-color": p.Surface,
				"color":            p.Text,
				"border":           "none",
			},
		},
		{
			Role:     ChatInputControl,
			Selector: MustParse(".stChatInputContainer button"),
			Properties: Properties{
				"background-color": p.Primary,
				"color":            p.Text,
				"border-radius":    p.BorderRadius,
			},
			Hover: Properties{"background-color": p.PrimaryHover},
		},
	}
	return &Registry{palette: p, rules: rules}
}

// DefaultRegistry is NewRegistry(HappyHues()).
func DefaultRegistry() *Registry { return NewRegistry(HappyHues()) }

// themeFile is the on-disk theme format.
type themeFile struct {
	Base    string  `yaml:"base"`
	Palette Palette `yaml:"palette"`
}

// LoadRegistry reads a YAML theme file. The file names a built-in base
// palette (default "happy_hues") and overrides any of its fields.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("domstyle: read theme: %w", err)
	}
	return ParseTheme(data)
}

// ParseTheme is LoadRegistry on an in-memory document.
func ParseTheme(data []byte) (*Registry, error) {
	var tf themeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("domstyle: parse theme: %w", err)
	}
	if tf.Base == "" {
		tf.Base = "happy_hues"
	}
	base, ok := Palettes()[tf.Base]
	if !ok {
		return nil, fmt.Errorf("domstyle: unknown base palette %q", tf.Base)
	}
	p := tf.Palette
	if p.Name == "" {
		p.Name = base.Name
	}
	p.fill(base)
	return NewRegistry(p), nil
}

// Palette returns the palette the registry was built from.
func (r *Registry) Palette() Palette { return r.palette }

// Rules returns a copy of every rule in registration order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.clone()
	}
	return out
}

// ByRole returns copies of the rules registered for role.
func (r *Registry) ByRole(role Role) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Role == role {
			out = append(out, rule.clone())
		}
	}
	return out
}

// Stylesheet renders the baseline stylesheet served alongside pages. Hover
// rules become ":hover" blocks.
func (r *Registry) Stylesheet() string {
	var out []string
	for _, rule := range r.rules {
		out = append(out, fmt.Sprintf("%s { %s }", rule.Selector, rule.Properties.CSS(true)))
		if rule.Hover != nil {
			out = append(out, fmt.Sprintf("%s:hover { %s }", rule.Selector, rule.Hover.CSS(true)))
		}
	}
	p := r.palette
	out = append(out, fmt.Sprintf("body { background-color: %s; color: %s; }", p.Background, p.Text))
	return strings.Join(out, "\n") + "\n"
}
