// Package graphio reads and writes graph manifests: the resolver/transformer
// output the optimizer consumes, serialized as JSON, YAML or TOML.
package graphio

// Format names a manifest encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ManifestVersion is the manifest schema version written by Encode.
const ManifestVersion = 1

// Manifest is the root of a graph manifest. Modules refer to their
// dependencies by specifier, never by index.
type Manifest struct {
	// Version is the schema version
	Version int `json:"version" yaml:"version" toml:"version"`

	// Entries are the entry module paths, in order
	Entries []string `json:"entries" yaml:"entries" toml:"entries"`

	// SplitChunks overrides the configured split toggle when set
	SplitChunks *bool `json:"splitChunks,omitempty" yaml:"splitChunks,omitempty" toml:"splitChunks,omitempty"`

	// Modules is the list of modules
	Modules []ModuleSpec `json:"modules" yaml:"modules" toml:"module"`
}

// ModuleSpec describes one module.
type ModuleSpec struct {
	Path          string           `json:"path" yaml:"path" toml:"path"`
	Virtual       bool             `json:"virtual,omitempty" yaml:"virtual,omitempty" toml:"virtual,omitempty"`
	Strict        bool             `json:"strict,omitempty" yaml:"strict,omitempty" toml:"strict,omitempty"`
	SideEffectful bool             `json:"sideEffectful,omitempty" yaml:"sideEffectful,omitempty" toml:"sideEffectful,omitempty"`
	OpaqueExports bool             `json:"opaqueExports,omitempty" yaml:"opaqueExports,omitempty" toml:"opaqueExports,omitempty"`
	Dependencies  []DependencySpec `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependency,omitempty"`
	Exports       []ExportSpec     `json:"exports,omitempty" yaml:"exports,omitempty" toml:"export,omitempty"`

	// ReexportAll lists the specifiers of `export * from` declarations
	ReexportAll []string   `json:"reexportAll,omitempty" yaml:"reexportAll,omitempty" toml:"reexportAll,omitempty"`
	Parts       []PartSpec `json:"parts,omitempty" yaml:"parts,omitempty" toml:"part,omitempty"`
}

// DependencySpec describes one import edge.
type DependencySpec struct {
	Specifier string   `json:"specifier" yaml:"specifier" toml:"specifier"`
	Target    string   `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Names     []string `json:"names,omitempty" yaml:"names,omitempty" toml:"names,omitempty"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`

	// AsyncType is the raw async marker: async, prefetch or weak
	AsyncType string `json:"asyncType,omitempty" yaml:"asyncType,omitempty" toml:"asyncType,omitempty"`
	Optional  bool   `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional,omitempty"`
}

// ExportSpec describes one static export. From is set for named re-exports.
type ExportSpec struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Local    string `json:"local,omitempty" yaml:"local,omitempty" toml:"local,omitempty"`
	From     string `json:"from,omitempty" yaml:"from,omitempty" toml:"from,omitempty"`
	Imported string `json:"imported,omitempty" yaml:"imported,omitempty" toml:"imported,omitempty"`
}

// PartSpec describes one top-level statement. Placeholders in Code may name
// a dependency by specifier ({{require ./math}}) or by index ({{require 0}}).
type PartSpec struct {
	Code        string       `json:"code" yaml:"code" toml:"code"`
	Declares    []string     `json:"declares,omitempty" yaml:"declares,omitempty" toml:"declares,omitempty"`
	Uses        []string     `json:"uses,omitempty" yaml:"uses,omitempty" toml:"uses,omitempty"`
	Imports     []ImportSpec `json:"imports,omitempty" yaml:"imports,omitempty" toml:"import,omitempty"`
	SideEffects bool         `json:"sideEffects,omitempty" yaml:"sideEffects,omitempty" toml:"sideEffects,omitempty"`
}

// ImportSpec records the names a statement reads through a dependency.
type ImportSpec struct {
	Dep   string   `json:"dep" yaml:"dep" toml:"dep"`
	Names []string `json:"names,omitempty" yaml:"names,omitempty" toml:"names,omitempty"`
}
