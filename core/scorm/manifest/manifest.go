// Package manifest reads the launch information of a SCORM package from its imsmanifest.xml.
package manifest

import (
	"bytes"
	"context"
	"encoding/xml"
	"io/fs"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

const FileName = "imsmanifest.xml"

// ContentStore opens the extracted files of a package.
type ContentStore interface {
	Open(pkg scorm.Package) (fs.FS, error)
}

// Resolver resolves package manifests from a ContentStore.
type Resolver struct {
	content ContentStore
}

var _ scorm.ManifestResolver = (*Resolver)(nil)

func NewResolver(content ContentStore) *Resolver {
	return &Resolver{content: content}
}

func (r *Resolver) Resolve(_ context.Context, pkg scorm.Package) (scorm.Manifest, error) {
	fsys, err := r.content.Open(pkg)
	if err != nil {
		return scorm.Manifest{}, errors.Wrap(err, "opening package content")
	}
	return Parse(fsys)
}

type (
	document struct {
		XMLName       xml.Name      `xml:"manifest"`
		SchemaVersion string        `xml:"metadata>schemaversion"`
		Organizations organizations `xml:"organizations"`
		Resources     resources     `xml:"resources"`
	}

	organizations struct {
		Default string         `xml:"default,attr"`
		List    []organization `xml:"organization"`
	}

	organization struct {
		Identifier string `xml:"identifier,attr"`
		Items      []item `xml:"item"`
	}

	item struct {
		IdentifierRef string `xml:"identifierref,attr"`
		Parameters    string `xml:"parameters,attr"`
		Items         []item `xml:"item"`
	}

	resources struct {
		Base string     `xml:"base,attr"`
		List []resource `xml:"resource"`
	}

	resource struct {
		Identifier    string `xml:"identifier,attr"`
		Href          string `xml:"href,attr"`
		Base          string `xml:"base,attr"`
		ScormType12   string `xml:"scormtype,attr"`
		ScormType2004 string `xml:"scormType,attr"`
	}
)

func (r resource) isSCO() bool {
	return strings.EqualFold(r.ScormType12, "sco") || strings.EqualFold(r.ScormType2004, "sco")
}

// Parse reads the manifest at the root of fsys.
// The entry point is the resource of the first item of the default organization, or else the
// first SCO resource declaring an href. A manifest declaring neither is not launchable.
func Parse(fsys fs.FS) (scorm.Manifest, error) {
	raw, err := fs.ReadFile(fsys, FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scorm.Manifest{}, scorm.ErrManifestNotFound
		}
		return scorm.Manifest{}, errors.Wrap(err, "reading manifest")
	}

	var doc document
	if err = xml.Unmarshal(raw, &doc); err != nil {
		return scorm.Manifest{}, errors.Wrap(err, "parsing manifest")
	}

	entry := doc.entryPoint()
	if entry == "" {
		return scorm.Manifest{}, scorm.ErrNoEntryPoint
	}
	return scorm.Manifest{EntryPath: entry, Version: detectVersion(doc.SchemaVersion, raw)}, nil
}

func detectVersion(schemaVersion string, raw []byte) scorm.Version {
	sv := strings.ToUpper(strings.TrimSpace(schemaVersion))
	switch {
	case sv == "1.2":
		return scorm.Version12
	case strings.Contains(sv, "2004"), strings.Contains(sv, "CAM 1.3"), sv == "1.3":
		return scorm.Version2004
	case bytes.Contains(raw, []byte("adlcp_v1p3")):
		return scorm.Version2004
	}
	// adlcp_rootv1p2 or no hint at all
	return scorm.Version12
}

func (doc document) entryPoint() string {
	byID := make(map[string]resource, len(doc.Resources.List))
	for _, res := range doc.Resources.List {
		byID[res.Identifier] = res
	}

	if org, ok := doc.defaultOrganization(); ok {
		if it, ok := firstLaunchableItem(org.Items, byID); ok {
			return doc.href(byID[it.IdentifierRef], it.Parameters)
		}
	}
	for _, res := range doc.Resources.List {
		if res.isSCO() && res.Href != "" {
			return doc.href(res, "")
		}
	}
	return ""
}

func (doc document) defaultOrganization() (organization, bool) {
	for _, org := range doc.Organizations.List {
		if org.Identifier == doc.Organizations.Default {
			return org, true
		}
	}
	if len(doc.Organizations.List) > 0 {
		return doc.Organizations.List[0], true
	}
	return organization{}, false
}

// firstLaunchableItem walks the item tree depth first.
func firstLaunchableItem(items []item, byID map[string]resource) (item, bool) {
	for _, it := range items {
		if it.IdentifierRef != "" && byID[it.IdentifierRef].Href != "" {
			return it, true
		}
		if child, ok := firstLaunchableItem(it.Items, byID); ok {
			return child, true
		}
	}
	return item{}, false
}

func (doc document) href(res resource, params string) string {
	href := strings.TrimPrefix(doc.Resources.Base+res.Base+res.Href, "/")
	params = strings.TrimSpace(params)
	if params == "" {
		return href
	}
	switch params[0] {
	case '#':
		return href + params
	case '?':
		params = params[1:]
	}
	if strings.Contains(href, "?") {
		return href + "&" + params
	}
	return href + "?" + params
}
