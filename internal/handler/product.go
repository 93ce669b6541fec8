package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dmarkhas/catalog-api/internal/domain/asset"
	"github.com/dmarkhas/catalog-api/internal/domain/catalog"
)

// fileField is the multipart field name carrying image uploads.
const fileField = "files"

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListPlain(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalPlainProducts(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetPlain(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalPlainProduct(*p))
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.PathValue("term"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalPlainProducts(products))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseMultipart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseCreateForm(form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := h.readFiles(form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.catalog.Create(r.Context(), req, files)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, marshalPlainProduct(catalog.Plain(*p)))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseMultipart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseUpdateForm(form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := h.readOptionalFiles(form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.catalog.Update(r.Context(), r.PathValue("id"), req, files)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalPlainProduct(catalog.Plain(*p)))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalMessage("product and images deleted"))
}

func (h *Handler) parseMultipart(r *http.Request) (*multipart.Form, error) {
	maxBody := int64(h.maxFiles)*h.maxFileSize + (1 << 20)
	r.Body = http.MaxBytesReader(nil, r.Body, maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, errors.Wrap(err, "parse multipart form")
	}
	return r.MultipartForm, nil
}

// parseCreateForm validates the full product payload.
func parseCreateForm(form *multipart.Form) (catalog.CreateRequest, error) {
	var req catalog.CreateRequest

	name := strings.TrimSpace(formValue(form, "name"))
	if len(name) < 3 {
		return req, errors.New("name must be at least 3 characters")
	}
	description := strings.TrimSpace(formValue(form, "description"))
	if len(description) < 3 {
		return req, errors.New("description must be at least 3 characters")
	}
	price, err := parsePrice(formValue(form, "price"))
	if err != nil {
		return req, err
	}
	stock, err := parseStock(formValue(form, "stock"))
	if err != nil {
		return req, err
	}

	req.Name = name
	req.Description = description
	req.Price = price
	req.Stock = stock
	req.CategoryIDs = formCategories(form)
	return req, nil
}

// parseUpdateForm validates whichever fields the partial payload supplies.
func parseUpdateForm(form *multipart.Form) (catalog.UpdateRequest, error) {
	var req catalog.UpdateRequest

	if v, ok := formLookup(form, "name"); ok {
		name := strings.TrimSpace(v)
		if len(name) < 3 {
			return req, errors.New("name must be at least 3 characters")
		}
		req.Name = &name
	}
	if v, ok := formLookup(form, "description"); ok {
		description := strings.TrimSpace(v)
		if len(description) < 3 {
			return req, errors.New("description must be at least 3 characters")
		}
		req.Description = &description
	}
	if v, ok := formLookup(form, "price"); ok {
		price, err := parsePrice(v)
		if err != nil {
			return req, err
		}
		req.Price = &price
	}
	if v, ok := formLookup(form, "stock"); ok {
		stock, err := parseStock(v)
		if err != nil {
			return req, err
		}
		req.Stock = &stock
	}
	if _, ok := form.Value["categories"]; ok {
		req.CategoryIDs = formCategories(form)
	}
	return req, nil
}

func parsePrice(v string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, errors.New("price must be a number")
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.New("price must be positive")
	}
	return price, nil
}

func parseStock(v string) (int, error) {
	stock, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.New("stock must be an integer")
	}
	if stock < 0 {
		return 0, errors.New("stock must not be negative")
	}
	return stock, nil
}

// formCategories accepts the category id list either as repeated fields or
// as one comma-separated field.
func formCategories(form *multipart.Form) []string {
	ids := make([]string, 0, len(form.Value["categories"]))
	for _, v := range form.Value["categories"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func formLookup(form *multipart.Form, key string) (string, bool) {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

// readFiles requires at least one uploaded file.
func (h *Handler) readFiles(form *multipart.Form) ([]asset.File, error) {
	files, err := h.readOptionalFiles(form)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("at least one image file is required")
	}
	return files, nil
}

// readOptionalFiles loads the uploaded files into memory, enforcing count,
// size, and image content type (sniffed, not trusted from the header).
func (h *Handler) readOptionalFiles(form *multipart.Form) ([]asset.File, error) {
	headers := form.File[fileField]
	if len(headers) > h.maxFiles {
		return nil, errors.Errorf("too many files: %d (max %d)", len(headers), h.maxFiles)
	}

	files := make([]asset.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxFileSize {
			return nil, errors.Errorf("file %q exceeds %d bytes", fh.Filename, h.maxFileSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open file %q", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read file %q", fh.Filename)
		}

		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			return nil, errors.Errorf("file %q is not an image (%s)", fh.Filename, contentType)
		}

		files = append(files, asset.File{
			Name:        fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}
