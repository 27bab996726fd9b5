// Package domstyle keeps inline styling consistent on elements that a host
// dashboard framework inserts and re-renders outside our control.
//
// A Registry holds the immutable style rules. A Reconciler applies every rule
// to every node currently matched in a Tree. A Runner drives the Reconciler
// from two independent producers (tree mutation notifications and a fixed
// polling interval) and serialises passes on a single goroutine.
package domstyle

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the semantic purpose of a style rule.
type Role int

const (
	GlobalFontOverride Role = iota
	UserAvatar
	AssistantAvatar
	AvatarIcon
	ChatMessageContainer
	ChatInputContainer
	ChatInputControl
)

var roleNames = map[Role]string{
	GlobalFontOverride:   "global_font_override",
	UserAvatar:           "user_avatar",
	AssistantAvatar:      "assistant_avatar",
	AvatarIcon:           "avatar_icon",
	ChatMessageContainer: "chat_message_container",
	ChatInputContainer:   "chat_input_container",
	ChatInputControl:     "chat_input_control",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps a snake_case role name back to its Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("domstyle: unknown role %q", s)
}

// Properties maps CSS property names to values. Values never carry the
// "!important" flag; trees add it when writing.
type Properties map[string]string

// Clone returns an independent copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Without returns p minus every property set in other.
func (p Properties) Without(other Properties) Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		if _, ok := other[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Merge returns p overlaid with over. Neither input is modified.
func (p Properties) Merge(over Properties) Properties {
	out := p.Clone()
	if out == nil {
		out = make(Properties, len(over))
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// CSS renders the properties as a declaration block body, sorted by name.
func (p Properties) CSS(important bool) string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(p[k])
		if important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Rule binds a role to a selector and the properties matched nodes receive.
// Hover, when non-nil, is applied on pointer enter and reverted to
// Properties on pointer leave.
type Rule struct {
	Role       Role
	Selector   Selector
	Properties Properties
	Hover      Properties
}

func (r Rule) clone() Rule {
	r.Properties = r.Properties.Clone()
	r.Hover = r.Hover.Clone()
	return r
}
