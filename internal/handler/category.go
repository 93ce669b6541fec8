package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/dmarkhas/catalog-api/internal/domain/category"
)

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalCategories(categories))
}

// getCategory resolves the term by id when it is a valid UUID, otherwise by
// case-insensitive exact name.
func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := category.Resolve(r.Context(), h.categories, r.PathValue("term"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalCategory(*c))
}

func (h *Handler) searchCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.Search(r.Context(), r.PathValue("term"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalCategories(categories))
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	name, err := decodeCategoryName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := &category.Category{ID: uuid.New().String(), Name: name}
	if err := h.categories.Insert(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, marshalCategory(*c))
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	name, err := decodeCategoryName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := &category.Category{ID: r.PathValue("id"), Name: name}
	if err := h.categories.Update(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalCategory(*c))
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.categories.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalMessage("category deleted"))
}

// decodeCategoryName reads the {name} JSON body and validates the name.
func decodeCategoryName(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<10))
	if err != nil {
		return "", errors.Wrap(err, "read body")
	}

	var name string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "name" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		name = v
		return nil
	}); err != nil {
		return "", errors.New("invalid JSON body")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name is required")
	}
	if len(name) > 127 {
		return "", errors.New("name must be at most 127 characters")
	}
	return name, nil
}
