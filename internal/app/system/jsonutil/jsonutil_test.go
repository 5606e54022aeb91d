package jsonutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q is not JSON: %v", rec.Body.String(), err)
	}
	return body
}

func TestWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		errMsg string
	}{
		{"OK", func(w http.ResponseWriter) { OK(w, map[string]int{"n": 1}) }, http.StatusOK, ""},
		{"Created", func(w http.ResponseWriter) { Created(w, map[string]int{"n": 1}) }, http.StatusCreated, ""},
		{"Error", func(w http.ResponseWriter) { Error(w, http.StatusTeapot, "short and stout") }, http.StatusTeapot, "short and stout"},
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "who") }, http.StatusUnauthorized, "who"},
		{"Forbidden", func(w http.ResponseWriter) { Forbidden(w, "no") }, http.StatusForbidden, "no"},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "Habit not found") }, http.StatusNotFound, "Habit not found"},
		{"Conflict", func(w http.ResponseWriter) { Conflict(w, "exists") }, http.StatusConflict, "exists"},
		{"InternalError", func(w http.ResponseWriter) { InternalError(w, "oops") }, http.StatusInternalServerError, "oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body := decodeBody(t, rec)
			if tt.errMsg != "" && body["error"] != tt.errMsg {
				t.Errorf("error = %v, want %q", body["error"], tt.errMsg)
			}
			if tt.errMsg == "" && body["n"] != float64(1) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestJSON_NilData(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusAccepted, nil)
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Errorf("JSON(nil) = %d %q, want 202 and empty body", rec.Code, rec.Body.String())
	}
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("NoContent() = %d %q", rec.Code, rec.Body.String())
	}
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, map[string]string{"title": "required"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	fields, _ := body["fields"].(map[string]any)
	if body["error"] != "validation failed" || fields["title"] != "required" {
		t.Errorf("body = %v", body)
	}
}

func TestTooManyRequests(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{30 * time.Minute, "1800"},
		{1500 * time.Millisecond, "2"},
		{0, "1"},
		{-time.Second, "1"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		TooManyRequests(rec, tt.wait, "slow down")

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("Retry-After(%v) = %q, want %q", tt.wait, got, tt.want)
		}
		body := decodeBody(t, rec)
		if body["error"] != "slow down" || body["retryAfter"] == nil {
			t.Errorf("body = %v", body)
		}
	}
}

func TestDecode(t *testing.T) {
	type input struct {
		Title string `json:"title"`
		Days  []int  `json:"days"`
	}

	tests := []struct {
		name    string
		body    string
		want    input
		wantErr error
		anyErr  bool
	}{
		{"object", `{"title":"Read","days":[1,3]}`, input{Title: "Read", Days: []int{1, 3}}, nil, false},
		{"trailing newline", "{\"title\":\"Run\"}\n", input{Title: "Run"}, nil, false},
		{"empty body", "", input{}, nil, false},
		{"whitespace body", "  \n", input{}, nil, false},
		{"malformed", `{"title":`, input{}, nil, true},
		{"wrong type", `{"title":5}`, input{}, nil, true},
		{"two values", `{"title":"a"} {"title":"b"}`, input{Title: "a"}, ErrTrailingData, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var got input
			err := Decode(req, &got)

			if tt.anyErr != (err != nil) {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && (got.Title != tt.want.Title || len(got.Days) != len(tt.want.Days)) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_Limits(t *testing.T) {
	var v map[string]string

	big := `{"note":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	if err := Decode(httptest.NewRequest("POST", "/", strings.NewReader(big)), &v); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("oversized Decode() error = %v, want ErrBodyTooLarge", err)
	}

	fits := `{"note":"` + strings.Repeat("x", MaxBodyBytes-20) + `"}`
	if err := Decode(httptest.NewRequest("POST", "/", strings.NewReader(fits)), &v); err != nil {
		t.Errorf("Decode() at the limit error = %v", err)
	}

	req := httptest.NewRequest("POST", "/", nil)
	req.Body = nil
	if err := Decode(req, &v); err != nil {
		t.Errorf("Decode(nil body) error = %v", err)
	}
}

func TestDecode_BodyConsumed(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"a":"1"}`))
	first := map[string]string{}
	if err := Decode(req, &first); err != nil || first["a"] != "1" {
		t.Fatalf("first Decode() = %v, %v", first, err)
	}

	second := map[string]string{"keep": "me"}
	if err := Decode(req, &second); err != nil || second["keep"] != "me" || len(second) != 1 {
		t.Errorf("second Decode() = %v, %v; want untouched", second, err)
	}
}

func TestTagged(t *testing.T) {
	data := map[string]any{"habits": []string{"read"}}

	rec := httptest.NewRecorder()
	Tagged(rec, httptest.NewRequest(http.MethodGet, "/api/habits", nil), data)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("ETag = %q, want weak validator", etag)
	}
	if etag != ETag(rec.Body.Bytes()) {
		t.Errorf("ETag %q does not match the body", etag)
	}
	if got := decodeBody(t, rec); got["habits"] == nil {
		t.Errorf("body = %v", got)
	}

	tests := []struct {
		name        string
		ifNoneMatch string
		data        any
		want        int
	}{
		{"same body", etag, data, http.StatusNotModified},
		{"listed among others", `W/"other", ` + etag, data, http.StatusNotModified},
		{"wildcard", "*", data, http.StatusNotModified},
		{"body changed", etag, map[string]any{"habits": []string{"read", "run"}}, http.StatusOK},
		{"no header", "", data, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/habits", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			rec := httptest.NewRecorder()
			Tagged(rec, req, tt.data)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNotModified && rec.Body.Len() != 0 {
				t.Errorf("304 carried a body: %q", rec.Body.String())
			}
		})
	}
}
