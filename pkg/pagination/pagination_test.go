package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/", DefaultLimit, 0},
		{"custom", "/?limit=50&offset=10", 50, 10},
		{"max limit", "/?limit=500", MaxLimit, 0},
		{"negative offset", "/?offset=-5", DefaultLimit, 0},
		{"page", "/?limit=10&page=3", 10, 20},
		{"page one", "/?page=1", DefaultLimit, 0},
		{"offset wins over page", "/?limit=10&offset=5&page=3", 10, 5},
		{"garbage", "/?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paramsFor(t, tt.target)
			if p.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(45, Params{Limit: 20, Offset: 20})
	if !m.HasMore {
		t.Error("expected HasMore for 20+20 < 45")
	}
	m = NewMeta(40, Params{Limit: 20, Offset: 20})
	if m.HasMore {
		t.Error("expected no more results at the last page")
	}
	if m.Total != 40 || m.Limit != 20 || m.Offset != 20 {
		t.Errorf("unexpected meta: %+v", m)
	}
}

func TestParams_NextOffset(t *testing.T) {
	if got := (Params{Limit: 20, Offset: 40}).NextOffset(); got != 60 {
		t.Errorf("expected 60, got %d", got)
	}
}
