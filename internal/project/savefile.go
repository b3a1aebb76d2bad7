package project

import (
	"fmt"
	"regexp"

	"github.com/beevik/etree"
)

// xmlIdentifier is deliberately conservative: the id arrives from the
// browser and is matched literally against xml:id attributes, never
// interpolated into a query.
var xmlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

// SaveFile handles a viewer's save_file request against the project at
// configPath: find the source file whose output carries xmlNode, locate
// the element with that xml:id, replace it with the parsed contents, and
// write the source back. Any failure abandons the edit.
func SaveFile(configPath, xmlNode, fileContents string) error {
	if !xmlIdentifier.MatchString(xmlNode) {
		return fmt.Errorf("save_file: %q is not a valid xml:id", xmlNode)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("save_file: %w", err)
	}

	mapping, err := LoadMapping(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("save_file: %w", err)
	}

	sourceFile, ok := mapping.SourceFor(xmlNode)
	if !ok {
		return fmt.Errorf("save_file: no source file maps to id %q", xmlNode)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(sourceFile); err != nil {
		return fmt.Errorf("save_file: cannot parse %s: %w", sourceFile, err)
	}

	target := findByXMLID(doc.Root(), xmlNode)
	if target == nil {
		return fmt.Errorf("save_file: no element with xml:id=%q in %s", xmlNode, sourceFile)
	}

	replacementDoc := etree.NewDocument()
	if err := replacementDoc.ReadFromString(fileContents); err != nil {
		return fmt.Errorf("save_file: replacement content is not well-formed: %w", err)
	}
	replacement := replacementDoc.Root()
	if replacement == nil {
		return fmt.Errorf("save_file: replacement content has no root element")
	}

	parent := target.Parent()
	if parent == nil {
		doc.SetRoot(replacement.Copy())
	} else {
		idx := target.Index()
		parent.RemoveChild(target)
		parent.InsertChildAt(idx, replacement.Copy())
	}

	if err := doc.WriteToFile(sourceFile); err != nil {
		return fmt.Errorf("save_file: cannot write %s: %w", sourceFile, err)
	}
	return nil
}

// findByXMLID walks the tree for a literal xml:id attribute match.
func findByXMLID(e *etree.Element, id string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.SelectAttrValue("xml:id", "") == id {
		return e
	}
	for _, child := range e.ChildElements() {
		if found := findByXMLID(child, id); found != nil {
			return found
		}
	}
	return nil
}
