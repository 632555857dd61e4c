// Package testutil provides shared test helpers: fatal assertions, canned
// archive responses and scratch file paths.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// JSONResponse builds an *http.Response for req whose body is v encoded as
// JSON.
func JSONResponse(t testing.TB, req *http.Request, status int, v interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	AssertNoError(t, err)
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     header,
		Request:    req,
	}
}

// SearchPayload lays out rows the way the archive answers a JSON search:
// an info object followed by one object per row.
func SearchPayload[R any](rows ...R) []interface{} {
	payload := []interface{}{map[string]interface{}{"HEADER": "ok"}}
	for _, r := range rows {
		payload = append(payload, r)
	}
	return payload
}

// TempPath returns name inside a per-test temporary directory.
func TempPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
