package domstyle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRegistry_Roles(t *testing.T) {
	reg := DefaultRegistry()
	for _, role := range []Role{GlobalFontOverride, UserAvatar, AssistantAvatar, ChatMessageContainer, ChatInputContainer, ChatInputControl} {
		if len(reg.ByRole(role)) == 0 {
			t.Errorf("role %s: no rules", role)
		}
	}

	user := reg.ByRole(UserAvatar)[0]
	if user.Properties["background-color"] != "#ffd803" {
		t.Fatalf("user avatar background = %q", user.Properties["background-color"])
	}
	if user.Properties["border"] != "none" || user.Properties["box-shadow"] != "none" {
		t.Fatalf("user avatar edges not removed: %v", user.Properties)
	}
	if got := reg.ByRole(AssistantAvatar)[0].Properties["background-color"]; got != "#7f5af0" {
		t.Fatalf("assistant avatar background = %q", got)
	}

	var hover Rule
	for _, r := range reg.ByRole(ChatInputControl) {
		if r.Hover != nil {
			hover = r
		}
	}
	if hover.Hover["background-color"] != "#6a48d7" {
		t.Fatalf("hover background = %q", hover.Hover["background-color"])
	}
	if hover.Properties["background-color"] != "#7f5af0" {
		t.Fatalf("button base background = %q", hover.Properties["background-color"])
	}
}

func TestRegistry_RulesAreCopies(t *testing.T) {
	reg := DefaultRegistry()
	rules := reg.Rules()
	rules[0].Properties["font-family"] = "serif"
	if reg.Rules()[0].Properties["font-family"] == "serif" {
		t.Fatal("mutating a returned rule changed the registry")
	}
}

func TestParseTheme(t *testing.T) {
	reg, err := ParseTheme([]byte("base: blue\npalette:\n  user_accent: \"#123456\"\n"))
	if err != nil {
		t.Fatalf("ParseTheme: %v", err)
	}
	p := reg.Palette()
	if p.Name != "blue" || p.Primary != "#3B82F6" {
		t.Fatalf("palette = %+v", p)
	}
	if got := reg.ByRole(UserAvatar)[0].Properties["background-color"]; got != "#123456" {
		t.Fatalf("override not applied: %q", got)
	}
}

func TestParseTheme_UnknownBase(t *testing.T) {
	if _, err := ParseTheme([]byte("base: neon\n")); err == nil {
		t.Fatal("expected error for unknown base palette")
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")
	if err := os.WriteFile(path, []byte("palette:\n  font_family: serif\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := reg.ByRole(GlobalFontOverride)[0].Properties["font-family"]; got != "serif" {
		t.Fatalf("font-family = %q", got)
	}
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStylesheet(t *testing.T) {
	css := DefaultRegistry().Stylesheet()
	for _, want := range []string{
		".stChatInputContainer button:hover { background-color: #6a48d7 !important; }",
		"body * { font-family: 'Geist Mono', monospace !important; }",
	} {
		if !strings.Contains(css, want) {
			t.Errorf("stylesheet missing %q", want)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("chat_input_control")
	if err != nil || r != ChatInputControl {
		t.Fatalf("ParseRole = %v, %v", r, err)
	}
	if _, err := ParseRole("nope"); err == nil {
		t.Fatal("expected error")
	}
}
