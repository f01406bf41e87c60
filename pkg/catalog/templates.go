package catalog

import "github.com/mesh-intelligence/devcatalog/pkg/types"

// Template returns a copy of a template, or nil when id is unknown.
func (c *Catalog) Template(id string) *types.Template {
	return c.templates.Get(id)
}

// SearchTemplates filters the template catalog by text and tags. An empty
// query with no tags lists every template, most popular first.
func (c *Catalog) SearchTemplates(query string, tags []string) []*types.Template {
	return c.templates.Search(query, tags)
}

// RegisterTemplate adds a template to the catalog for this process.
func (c *Catalog) RegisterTemplate(t *types.Template) error {
	return c.templates.Register(t)
}
