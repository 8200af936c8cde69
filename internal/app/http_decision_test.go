package app

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func createTagHTTP(t *testing.T, baseURL, name string) {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, baseURL+"/tags", "", map[string]any{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create tag status = %d, payload %v", resp.StatusCode, payload)
	}
}

func createDecisionHTTP(t *testing.T, baseURL, token string, tags []string) map[string]any {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, baseURL+"/decisions", token, map[string]any{
		"title":           "Switch jobs",
		"context":         "Current role has plateaued",
		"expectedOutcome": "More growth within a year",
		"tags":            tags,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create decision status = %d, payload %v", resp.StatusCode, payload)
	}
	return payload
}

func TestDecisionLifecycle(t *testing.T) {
	server, st := newTestServer(t)
	token := signUpAndSignIn(t, server.URL, "ada@example.com")
	createTagHTTP(t, server.URL, "career")

	// Create
	decision := createDecisionHTTP(t, server.URL, token, []string{"career"})
	decisionID := decision["id"].(string)
	if decision["status"] != "PENDING" {
		t.Fatalf("status = %v, want PENDING", decision["status"])
	}
	if decision["review"] != nil {
		t.Fatalf("review = %v, want null", decision["review"])
	}

	// List
	resp, _ := doJSON(t, http.MethodGet, server.URL+"/decisions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}

	// Patch while pending
	resp, patched := doJSON(t, http.MethodPatch, server.URL+"/decisions/"+decisionID, token, map[string]any{
		"title": "Switch jobs, carefully",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, payload %v", resp.StatusCode, patched)
	}
	if patched["title"] != "Switch jobs, carefully" {
		t.Fatalf("patched title = %v", patched["title"])
	}

	// Review too early
	reviewBody := map[string]any{
		"actualOutcome":  "Got a better role",
		"lessonsLearned": "Trust the research",
	}
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/decisions/"+decisionID+"/review", token, reviewBody)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("early review status = %d, want 400", resp.StatusCode)
	}
	if payload["error"] != "Wait at least 1 day before reviewing" {
		t.Fatalf("early review payload = %v", payload)
	}

	// Age the decision past the window, then review
	st.backdate(decisionID, 48*time.Hour)
	resp, reviewed := doJSON(t, http.MethodPost, server.URL+"/decisions/"+decisionID+"/review", token, reviewBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review status = %d, payload %v", resp.StatusCode, reviewed)
	}
	if reviewed["status"] != "REVIEWED" {
		t.Fatalf("status after review = %v", reviewed["status"])
	}
	review := reviewed["review"].(map[string]any)
	if review["actualOutcome"] != "Got a better role" {
		t.Fatalf("review payload = %v", review)
	}

	// Second review is rejected
	resp, payload = doJSON(t, http.MethodPost, server.URL+"/decisions/"+decisionID+"/review", token, reviewBody)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second review status = %d, want 400", resp.StatusCode)
	}
	if payload["error"] != "Decision already reviewed" {
		t.Fatalf("second review payload = %v", payload)
	}

	// Reviewed decisions are immutable
	resp, payload = doJSON(t, http.MethodPatch, server.URL+"/decisions/"+decisionID, token, map[string]any{
		"title": "Rewrite history",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("patch after review status = %d, want 403", resp.StatusCode)
	}
	if payload["error"] != "Cannot update a reviewed decision" {
		t.Fatalf("patch after review payload = %v", payload)
	}

	// Delete still works and returns the last state
	resp, deleted := doJSON(t, http.MethodDelete, server.URL+"/decisions/"+decisionID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if deleted["id"] != decisionID {
		t.Fatalf("deleted payload = %v", deleted)
	}
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/decisions/"+decisionID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestDecisionAccessControl(t *testing.T) {
	server, _ := newTestServer(t)
	ownerToken := signUpAndSignIn(t, server.URL, "owner@example.com")
	strangerToken := signUpAndSignIn(t, server.URL, "stranger@example.com")

	decision := createDecisionHTTP(t, server.URL, ownerToken, nil)
	decisionID := decision["id"].(string)

	for _, attempt := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/decisions/" + decisionID},
		{http.MethodPatch, "/decisions/" + decisionID},
		{http.MethodDelete, "/decisions/" + decisionID},
		{http.MethodPost, "/decisions/" + decisionID + "/review"},
	} {
		resp, payload := doJSON(t, attempt.method, server.URL+attempt.path, strangerToken, map[string]any{})
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s %s as stranger: status = %d, want 403", attempt.method, attempt.path, resp.StatusCode)
		}
		if payload["error"] != "Access to this resource denied" {
			t.Errorf("%s %s payload = %v", attempt.method, attempt.path, payload)
		}
	}

	// The stranger's own list stays empty.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/decisions", nil)
	req.Header.Set("Authorization", "Bearer "+strangerToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("stranger sees %d decisions, want 0", len(list))
	}
}

func TestCreateDecisionValidation(t *testing.T) {
	server, _ := newTestServer(t)
	token := signUpAndSignIn(t, server.URL, "ada@example.com")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/decisions", token, map[string]any{
		"title": "No context or outcome",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, payload %v", resp.StatusCode, payload)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/decisions", token, map[string]any{
		"title":           "Tagged wrong",
		"context":         "ctx",
		"expectedOutcome": "outcome",
		"tags":            []string{"no-such-tag"},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown tag status = %d, want 404", resp.StatusCode)
	}
	if payload["error"] != "One or more tags not found" {
		t.Fatalf("unknown tag payload = %v", payload)
	}
}

func TestTagCatalogHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	createTagHTTP(t, server.URL, "career")

	// Duplicate name conflicts
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/tags", "", map[string]any{"name": "career"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate tag status = %d, want 409", resp.StatusCode)
	}
	if payload["error"] != "Tag already exists" {
		t.Fatalf("duplicate tag payload = %v", payload)
	}

	// Catalog is readable without a token
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/tags", nil)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	defer resp2.Body.Close()
	var tags []map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&tags); err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if len(tags) != 1 || tags[0]["name"] != "career" {
		t.Fatalf("tags = %v", tags)
	}
}
