// Package fieldpath derives field lists from an Elasticsearch-style mapping document.
//
// A field path is a dotted string addressing one leaf, e.g. "nearbyStations.name".
// Paths are produced in document order, so the lists handed to the domain
// responder are stable across runs.
package fieldpath

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultSchema is the built-in parking index mapping.
//
//go:embed parking_mapping.json
var DefaultSchema []byte

// Group is a named, ordered list of path suffixes.
type Group struct {
	Name     string
	Keywords []string
}

// DefaultGroups select the default search fields, in priority order.
//
//nolint:gochecknoglobals // static keyword table
var DefaultGroups = []Group{
	{Name: "location", Keywords: []string{"address", "addressView", "location", "city.name", "prefecture.name", "region.name", "nearbyStations.name"}},
	{Name: "fee", Keywords: []string{"payment.fee", "spaces.rent", "spaces.rentMin", "spaces.rentTaxClass", "referralFeeTotal", "storageDocument.issuingFee"}},
	{Name: "security", Keywords: []string{"securityFacilities.status", "spaces.facility"}},
	{Name: "space", Keywords: []string{"spaces", "capacity", "hasDivisionDrawing"}},
}

// Fields holds the lists derived from one schema. It is built once and not modified.
type Fields struct {
	All     []string
	Default []string
	Nested  []string
}

// Load reads the schema at path, or uses DefaultSchema when path is empty.
func Load(path string) (*Fields, error) {
	if path == "" {
		return Parse(DefaultSchema)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return Parse(data)
}

// Parse derives all lists from a schema document.
func Parse(schema []byte) (*Fields, error) {
	props, err := rootProperties(schema)
	if err != nil {
		return nil, err
	}
	all := leafPaths(props, "")
	return &Fields{
		All:     all,
		Default: DefaultFields(all, DefaultGroups),
		Nested:  nestedPaths(props, ""),
	}, nil
}

// LeafPaths returns every leaf path of schema in document order.
func LeafPaths(schema []byte) ([]string, error) {
	props, err := rootProperties(schema)
	if err != nil {
		return nil, err
	}
	return leafPaths(props, ""), nil
}

// NestedPaths returns the paths of nodes whose type is "nested", in document order.
func NestedPaths(schema []byte) ([]string, error) {
	props, err := rootProperties(schema)
	if err != nil {
		return nil, err
	}
	return nestedPaths(props, ""), nil
}

// DefaultFields picks the paths ending with a group keyword. The result is ordered
// by group, then keyword, then path order, without duplicates.
func DefaultFields(paths []string, groups []Group) []string {
	var ordered []string
	for _, g := range groups {
		for _, kw := range g.Keywords {
			for _, p := range paths {
				if strings.HasSuffix(p, kw) && !slices.Contains(ordered, p) {
					ordered = append(ordered, p)
				}
			}
		}
	}
	return ordered
}

// rootProperties accepts {"properties": {...}} or a bare {name: {...}} map.
func rootProperties(schema []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(schema) {
		return gjson.Result{}, fmt.Errorf("schema is not valid JSON")
	}
	root := gjson.ParseBytes(schema)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("schema must be a JSON object")
	}
	if props := root.Get("properties"); props.IsObject() {
		return props, nil
	}
	return root, nil
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// descends reports whether a node is walked into rather than treated as a leaf.
func descends(node gjson.Result) bool {
	return node.Get("type").String() == "nested" || node.Get("properties").Exists()
}

func leafPaths(props gjson.Result, parent string) []string {
	var paths []string
	props.ForEach(func(key, node gjson.Result) bool {
		path := join(parent, key.String())
		if node.IsObject() && descends(node) {
			paths = append(paths, leafPaths(node.Get("properties"), path)...)
		} else {
			paths = append(paths, path)
		}
		return true
	})
	return paths
}

func nestedPaths(props gjson.Result, parent string) []string {
	var paths []string
	props.ForEach(func(key, node gjson.Result) bool {
		if !node.IsObject() {
			return true
		}
		path := join(parent, key.String())
		if node.Get("type").String() == "nested" {
			paths = append(paths, path)
		}
		if children := node.Get("properties"); children.Exists() {
			paths = append(paths, nestedPaths(children, path)...)
		}
		return true
	})
	return paths
}
