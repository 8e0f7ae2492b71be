// Package jsonapi writes JSON:API documents (https://jsonapi.org) for the
// ledger's HTTP adapter.
package jsonapi

import "strconv"

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"

// Meta is free-form metadata on a document.
type Meta map[string]any

// Document is a top-level JSON:API document. It carries data or errors,
// optionally with meta.
type Document struct {
	Data   any     `json:"data,omitempty"`
	Errors []Error `json:"errors,omitempty"`
	Meta   Meta    `json:"meta,omitempty"`
}

// Resource is a JSON:API resource object.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship is a to-one resource linkage.
type Relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

// Error is a JSON:API error object.
type Error struct {
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource points at the part of the request that caused an error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Header    string `json:"header,omitempty"`
}

// StatusCode returns Status as an int, or 0 if it is not numeric.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// DocumentBuilder assembles a Document.
type DocumentBuilder struct {
	doc Document
}

func NewDocument() *DocumentBuilder {
	return &DocumentBuilder{}
}

func (b *DocumentBuilder) Data(data any) *DocumentBuilder {
	b.doc.Data = data
	return b
}

// Errors replaces any data; a document never carries both.
func (b *DocumentBuilder) Errors(errs ...Error) *DocumentBuilder {
	b.doc.Errors = errs
	b.doc.Data = nil
	return b
}

func (b *DocumentBuilder) Meta(key string, value any) *DocumentBuilder {
	if b.doc.Meta == nil {
		b.doc.Meta = Meta{}
	}
	b.doc.Meta[key] = value
	return b
}

func (b *DocumentBuilder) MetaAll(meta Meta) *DocumentBuilder {
	for k, v := range meta {
		b.Meta(k, v)
	}
	return b
}

func (b *DocumentBuilder) Build() Document {
	return b.doc
}

// ResourceBuilder assembles a Resource.
type ResourceBuilder struct {
	r Resource
}

func NewResource(resourceType, id string) *ResourceBuilder {
	return &ResourceBuilder{r: Resource{Type: resourceType, ID: id, Attributes: map[string]any{}}}
}

func (b *ResourceBuilder) Attr(key string, value any) *ResourceBuilder {
	b.r.Attributes[key] = value
	return b
}

// BelongsTo links the resource to its owner. An empty relID adds nothing.
func (b *ResourceBuilder) BelongsTo(name, relType, relID string) *ResourceBuilder {
	if relID == "" {
		return b
	}
	if b.r.Relationships == nil {
		b.r.Relationships = map[string]Relationship{}
	}
	var rel Relationship
	rel.Data.Type, rel.Data.ID = relType, relID
	b.r.Relationships[name] = rel
	return b
}

func (b *ResourceBuilder) Build() Resource {
	return b.r
}
