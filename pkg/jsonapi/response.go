package jsonapi

import (
	"encoding/json"
	"net/http"
)

// WriteDocument encodes doc with the JSON:API content type.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

func WriteResource(w http.ResponseWriter, status int, r Resource) {
	WriteDocument(w, status, NewDocument().Data(r).Build())
}

// WriteCollection writes resources as an array; nil is written as [].
func WriteCollection(w http.ResponseWriter, status int, resources []Resource, meta Meta) {
	if resources == nil {
		resources = []Resource{}
	}
	WriteDocument(w, status, NewDocument().Data(resources).MetaAll(meta).Build())
}

// WriteMeta writes a meta-only document, used for accepted writes.
func WriteMeta(w http.ResponseWriter, status int, meta Meta) {
	WriteDocument(w, status, NewDocument().MetaAll(meta).Build())
}

// WriteError writes errs with the status of the first one.
func WriteError(w http.ResponseWriter, errs ...Error) {
	status := http.StatusInternalServerError
	if len(errs) == 0 {
		errs = []Error{NewError(status, "internal_error", "Internal Server Error").Build()}
	} else if code := errs[0].StatusCode(); code != 0 {
		status = code
	}
	WriteDocument(w, status, NewDocument().Errors(errs...).Build())
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, NewError(http.StatusBadRequest, "bad_request", "Bad Request").Detail(detail).Build())
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, NewError(http.StatusUnauthorized, "unauthorized", "Unauthorized").Detail(detail).Build())
}

func WriteNotFound(w http.ResponseWriter, resourceType, id string) {
	WriteError(w, NewError(http.StatusNotFound, "not_found", "Not Found").
		Detailf("%s %q not found", resourceType, id).
		Build())
}

// WriteValidationError writes a 422 pointing at the attribute field.
func WriteValidationError(w http.ResponseWriter, field, message string) {
	WriteError(w, NewError(http.StatusUnprocessableEntity, "validation_error", "Validation Failed").
		Detail(message).
		Pointer("/data/attributes/"+field).
		Build())
}
