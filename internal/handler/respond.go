package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dmarkhas/catalog-api/internal/domain/catalog"
	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes the {code, message} error payload.
func writeError(w http.ResponseWriter, status int, message string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

// writeDomainError maps domain errors onto HTTP statuses: validation 400,
// not-found 404, conflict 409, upload 502, everything else 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr *catalog.ValidationError
		cErr *catalog.ConflictError
		uErr *catalog.UploadError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Reason)
	case errors.Is(err, product.ErrNotFound), errors.Is(err, category.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cErr):
		writeError(w, http.StatusConflict, cErr.Error())
	case errors.Is(err, product.ErrNameExists), errors.Is(err, category.ErrNameExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &uErr):
		writeError(w, http.StatusBadGateway, uErr.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func encodePlainProduct(e *jx.Encoder, p catalog.PlainProduct) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.FieldStart("categories")
	e.ArrStart()
	for _, c := range p.Categories {
		e.Str(c)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func marshalPlainProduct(p catalog.PlainProduct) []byte {
	e := &jx.Encoder{}
	encodePlainProduct(e, p)
	return e.Bytes()
}

func marshalPlainProducts(products []catalog.PlainProduct) []byte {
	e := &jx.Encoder{}
	e.ArrStart()
	for _, p := range products {
		encodePlainProduct(e, p)
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodeCategory(e *jx.Encoder, c category.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.ObjEnd()
}

func marshalCategory(c category.Category) []byte {
	e := &jx.Encoder{}
	encodeCategory(e, c)
	return e.Bytes()
}

func marshalCategories(categories []category.Category) []byte {
	e := &jx.Encoder{}
	e.ArrStart()
	for _, c := range categories {
		encodeCategory(e, c)
	}
	e.ArrEnd()
	return e.Bytes()
}

func marshalMessage(msg string) []byte {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	return e.Bytes()
}
