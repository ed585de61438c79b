package server

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// HALContentType is the media type of every HAL document.
const HALContentType = "application/hal+json"

// Link is a single HAL link.
type Link struct {
	Href string `json:"href"`
	Name string `json:"name,omitempty"`
}

// Links is the set of links for one relation. A single link is rendered as
// an object and anything else as an array.
type Links []Link

// Append adds a link to the relation.
func (l Links) Append(link Link) Links {
	return append(l, link)
}

func (l Links) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]Link(l))
}

// Resource is a HAL document with links and arbitrary state.
type Resource struct {
	Links map[string]Links `json:"_links"`
	State any              `json:"-"`
}

// NewResource returns a resource whose self link points at href.
func NewResource(href string) *Resource {
	return &Resource{
		Links: map[string]Links{"self": {{Href: href}}},
	}
}

// WithLink adds a link under rel, appending when rel already has links.
func (r *Resource) WithLink(rel string, link Link) *Resource {
	r.Links[rel] = r.Links[rel].Append(link)
	return r
}

// MarshalJSON merges the state fields with _links into one object.
func (r *Resource) MarshalJSON() ([]byte, error) {
	doc := map[string]any{}
	if r.State != nil {
		raw, err := json.Marshal(r.State)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	}
	doc["_links"] = r.Links
	return json.Marshal(doc)
}

// respondHAL writes r as application/hal+json.
func respondHAL(c *gin.Context, status int, r *Resource) {
	c.Header("Content-Type", HALContentType)
	c.JSON(status, r)
}
