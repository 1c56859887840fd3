package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/iancoleman/strcase"
)

// Manifest declares the data classes of one package.
type Manifest struct {
	Package string      `toml:"package"`
	Classes []ClassDecl `toml:"class"`
}

// ClassDecl declares one data class. Names are converted to Java style, so
// "user_account" becomes UserAccount.
type ClassDecl struct {
	Name       string         `toml:"name"`
	Super      string         `toml:"super"`
	Interfaces []string       `toml:"interfaces"`
	Fields     []FieldDecl    `toml:"field"`
	Constants  []ConstantDecl `toml:"constant"`
}

type FieldDecl struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// ConstantDecl declares a public static final field with a constant value.
type ConstantDecl struct {
	Name  string      `toml:"name"`
	Type  string      `toml:"type"`
	Value interface{} `toml:"value"`
}

// loadManifest parses a manifest file.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return parseManifest(path, data)
}

func parseManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key in %s: %s", path, undecoded[0])
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("%s declares no classes", path)
	}
	seen := map[string]bool{}
	for i, c := range m.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("%s: class %d has no name", path, i)
		}
		name := m.className(c)
		if seen[name] {
			return nil, fmt.Errorf("%s: class %s is declared twice", path, name)
		}
		seen[name] = true
		for _, f := range c.Fields {
			if f.Name == "" || f.Type == "" {
				return nil, fmt.Errorf("%s: field of %s needs a name and a type", path, name)
			}
		}
		for _, k := range c.Constants {
			if k.Name == "" || k.Type == "" || k.Value == nil {
				return nil, fmt.Errorf("%s: constant of %s needs a name, a type and a value", path, name)
			}
		}
	}
	return &m, nil
}

// className returns the binary name of a class.
func (m *Manifest) className(c ClassDecl) string {
	name := strcase.ToCamel(c.Name)
	if m.Package == "" {
		return name
	}
	return m.Package + "." + name
}

// fieldName returns the Java field name for a manifest name.
func fieldName(name string) string {
	return strcase.ToLowerCamel(name)
}

// getterName returns the accessor for a field: "is" for booleans, "get"
// otherwise.
func getterName(name, typ string) string {
	prefix := "get"
	if typ == "boolean" {
		prefix = "is"
	}
	return prefix + strcase.ToCamel(name)
}

// constantName returns the Java name of a static final constant.
func constantName(name string) string {
	return strcase.ToScreamingSnake(name)
}
