//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestListCategories(t *testing.T) {
	resp := doGet(t, "/api/categories")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	categories := decodeJSON[[]categoryResponse](t, resp)
	if len(categories) < 5 {
		t.Fatalf("expected at least 5 categories, got %d", len(categories))
	}
}

func TestGetCategory_ByName(t *testing.T) {
	resp := doGet(t, "/api/categories/Audio")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	c := decodeJSON[categoryResponse](t, resp)
	if c.Name != "Audio" {
		t.Errorf("name: got %q, want Audio", c.Name)
	}
	if c.ID == "" {
		t.Error("id is empty")
	}
}

func TestGetCategory_ByID(t *testing.T) {
	byName := doGet(t, "/api/categories/Gaming")
	defer byName.Body.Close()
	if byName.StatusCode != http.StatusOK {
		t.Fatalf("resolve by name: expected 200, got %d", byName.StatusCode)
	}
	seeded := decodeJSON[categoryResponse](t, byName)

	resp := doGet(t, "/api/categories/"+seeded.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[categoryResponse](t, resp)
	if got.ID != seeded.ID {
		t.Errorf("id: got %q, want %q", got.ID, seeded.ID)
	}
}

func TestGetCategory_NotFound(t *testing.T) {
	resp := doGet(t, "/api/categories/NoSuchCategory")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSearchCategories(t *testing.T) {
	resp := doGet(t, "/api/categories/search/aud")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	categories := decodeJSON[[]categoryResponse](t, resp)
	if len(categories) != 1 || categories[0].Name != "Audio" {
		t.Fatalf("expected [Audio], got %v", categories)
	}
}

func TestCreateCategory(t *testing.T) {
	name := fmt.Sprintf("Integration Category %d", time.Now().UnixNano())

	resp := doJSONWithAuth(t, http.MethodPost, "/api/categories",
		map[string]string{"name": name}, seedAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	created := decodeJSON[categoryResponse](t, resp)
	if created.Name != name {
		t.Errorf("name: got %q, want %q", created.Name, name)
	}
}

func TestCreateCategory_Duplicate(t *testing.T) {
	resp := doJSONWithAuth(t, http.MethodPost, "/api/categories",
		map[string]string{"name": "Audio"}, seedAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCreateCategory_Unauthorized(t *testing.T) {
	resp := doJSONWithAuth(t, http.MethodPost, "/api/categories",
		map[string]string{"name": "Unauthorized Category"}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUpdateCategory(t *testing.T) {
	name := fmt.Sprintf("Rename Me %d", time.Now().UnixNano())
	createResp := doJSONWithAuth(t, http.MethodPost, "/api/categories",
		map[string]string{"name": name}, seedAPIKey)
	defer createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", createResp.StatusCode)
	}
	created := decodeJSON[categoryResponse](t, createResp)

	renamed := name + " Renamed"
	resp := doJSONWithAuth(t, http.MethodPatch, "/api/categories/"+created.ID,
		map[string]string{"name": renamed}, seedAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[categoryResponse](t, resp)
	if got.Name != renamed {
		t.Errorf("name: got %q, want %q", got.Name, renamed)
	}
}

func TestDeleteCategory(t *testing.T) {
	name := fmt.Sprintf("Delete Me %d", time.Now().UnixNano())
	createResp := doJSONWithAuth(t, http.MethodPost, "/api/categories",
		map[string]string{"name": name}, seedAPIKey)
	defer createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", createResp.StatusCode)
	}
	created := decodeJSON[categoryResponse](t, createResp)

	resp := doDelete(t, "/api/categories/"+created.ID, seedAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	getResp := doGet(t, "/api/categories/" + created.ID)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", getResp.StatusCode)
	}
}
