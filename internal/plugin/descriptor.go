// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// DescriptorFile is the descriptor's path inside an archive.
const DescriptorFile = "plugin.yaml"

// Type identifies the module runtime.
type Type string

// Module types supported by the host.
const (
	TypeLua    Type = "lua"
	TypeBinary Type = "binary"
)

// Descriptor represents a module's plugin.yaml.
type Descriptor struct {
	Name         string                 `yaml:"name" jsonschema:"minLength=1,maxLength=64,pattern=^[A-Za-z0-9][A-Za-z0-9_.-]*$"`
	Version      string                 `yaml:"version" jsonschema:"minLength=1"`
	Description  string                 `yaml:"description,omitempty"`
	Authors      []string               `yaml:"authors,omitempty"`
	Type         Type                   `yaml:"type" jsonschema:"enum=lua,enum=binary"`
	Commands     map[string]CommandSpec `yaml:"commands,omitempty"`
	Listeners    []ListenerSpec         `yaml:"listeners,omitempty"`
	Capabilities []string               `yaml:"capabilities,omitempty"`
	LuaPlugin    *LuaConfig             `yaml:"lua-plugin,omitempty"`
	BinaryPlugin *BinaryConfig          `yaml:"binary-plugin,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" jsonschema:"minLength=1"`
}

// BinaryConfig holds binary module configuration.
type BinaryConfig struct {
	Executable string `yaml:"executable" jsonschema:"minLength=1"`
}

// CommandSpec is a command declared by a module.
type CommandSpec struct {
	Description string     `yaml:"description,omitempty"`
	Usage       string     `yaml:"usage,omitempty"`
	Permission  string     `yaml:"permission,omitempty"`
	Aliases     StringList `yaml:"aliases,omitempty"`
}

// ListenerSpec subscribes a module to an event kind. A listener without a
// priority runs at PriorityNormal.
type ListenerSpec struct {
	Event    string   `yaml:"event" jsonschema:"minLength=1"`
	Priority Priority `yaml:"priority,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ListenerSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain ListenerSpec
	spec := plain{Priority: PriorityNormal}
	if err := value.Decode(&spec); err != nil {
		return err //nolint:wrapcheck // yaml reports line/column itself
	}
	*l = ListenerSpec(spec)
	return nil
}

// MarshalYAML always writes the priority, since an omitted one reads back
// as normal.
func (l ListenerSpec) MarshalYAML() (any, error) {
	return struct {
		Event    string   `yaml:"event"`
		Priority Priority `yaml:"priority"`
	}{Event: l.Event, Priority: l.Priority}, nil
}

// StringList accepts either a single YAML string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err //nolint:wrapcheck // yaml reports line/column itself
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// JSONSchema describes the string-or-list form.
func (StringList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}

// Priority orders listeners for the same event kind. Lower runs first.
type Priority int

// Listener priorities, in delivery order.
const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

var priorityNames = []string{"lowest", "low", "normal", "high", "highest", "monitor"}

// String returns the descriptor spelling of the priority.
func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return "unknown"
	}
	return priorityNames[p]
}

// ParsePriority converts a descriptor spelling to a Priority. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	idx := slices.Index(priorityNames, strings.ToLower(s))
	if idx < 0 {
		return 0, fmt.Errorf("priority %q must be one of %s", s, strings.Join(priorityNames, ", "))
	}
	return Priority(idx), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err //nolint:wrapcheck // yaml reports line/column itself
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Priority) MarshalYAML() (any, error) {
	return p.String(), nil
}

// JSONSchema restricts priorities to the known spellings.
func (Priority) JSONSchema() *jsonschema.Schema {
	enum := make([]any, len(priorityNames))
	for i, n := range priorityNames {
		enum[i] = n
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

// maxNameLength is the maximum allowed length for module names.
const maxNameLength = 64

// namePattern validates module names: letters, digits, '_', '.', '-', not
// starting with punctuation. Names are unique case-insensitively.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ParseDescriptor parses and validates a plugin.yaml file.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, oops.Code(CodeInvalidDescriptor).Errorf("descriptor data is empty")
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, oops.Code(CodeInvalidDescriptor).Wrapf(err, "invalid YAML")
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Validate checks descriptor constraints.
func (d *Descriptor) Validate() error {
	fail := oops.Code(CodeInvalidDescriptor).With("plugin", d.Name)

	if d.Name == "" || !namePattern.MatchString(d.Name) {
		return fail.Errorf("name %q must start with a letter or digit and contain only letters, digits, '_', '.', '-'", d.Name)
	}
	if len(d.Name) > maxNameLength {
		return fail.Errorf("name must be %d characters or less, got %d", maxNameLength, len(d.Name))
	}

	if d.Version == "" {
		return fail.Errorf("version is required")
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return fail.Wrapf(err, "version %q is not a semantic version", d.Version)
	}

	switch d.Type {
	case TypeLua:
		if d.LuaPlugin == nil {
			return fail.Errorf("lua-plugin is required when type is lua")
		}
		if d.LuaPlugin.Entry == "" {
			return fail.Errorf("lua-plugin.entry is required")
		}
	case TypeBinary:
		if d.BinaryPlugin == nil {
			return fail.Errorf("binary-plugin is required when type is binary")
		}
		if d.BinaryPlugin.Executable == "" {
			return fail.Errorf("binary-plugin.executable is required")
		}
	default:
		return fail.Errorf("type must be 'lua' or 'binary', got %q", d.Type)
	}

	for name, spec := range d.Commands {
		if !validLabel(name) {
			return fail.Errorf("command name %q must be non-empty without whitespace or ':'", name)
		}
		for _, alias := range spec.Aliases {
			if !validLabel(alias) {
				return fail.Errorf("command %s: alias %q must be non-empty without whitespace or ':'", name, alias)
			}
		}
	}

	for i, l := range d.Listeners {
		if strings.TrimSpace(l.Event) == "" {
			return fail.Errorf("listener %d: event is required", i)
		}
	}

	return nil
}

func validLabel(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\r\n:")
}

// FullName returns "Name vVersion".
func (d *Descriptor) FullName() string {
	return d.Name + " v" + d.Version
}

// CommandNames returns the declared command names in lexical order.
func (d *Descriptor) CommandNames() []string {
	names := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Declares reports whether label is one of the module's command names or
// aliases, compared case-insensitively.
func (d *Descriptor) Declares(label string) bool {
	for name, spec := range d.Commands {
		if strings.EqualFold(name, label) {
			return true
		}
		for _, alias := range spec.Aliases {
			if strings.EqualFold(alias, label) {
				return true
			}
		}
	}
	return false
}
