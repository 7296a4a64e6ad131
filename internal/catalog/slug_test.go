package catalog

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SaaS Starter Kit", "saas-starter-kit"},
		{"  spaced   out  ", "spaced-out"},
		{"C++ & Go!!", "c-go"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case_MIX", "upper-case-mix"},
		{"v2.0 (beta)", "v2-0-beta"},
		{"!!!", "entry"},
		{"", "entry"},
		{"Café Template", "café-template"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlug_TimestampSuffix(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := Slug("Shop Kit", now)

	wantSuffix := "-" + strconv.FormatInt(1700000000, 36)
	if !strings.HasSuffix(got, wantSuffix) {
		t.Errorf("Slug = %q, want suffix %q", got, wantSuffix)
	}
	if !strings.HasPrefix(got, "shop-kit-") {
		t.Errorf("Slug = %q, want prefix %q", got, "shop-kit-")
	}
}

func TestSlug_Deterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := Slug("Shop Kit", now)
	b := Slug("Shop Kit", now)
	if a != b {
		t.Errorf("same title and time produced different slugs: %q vs %q", a, b)
	}

	later := Slug("Shop Kit", now.Add(time.Second))
	if a == later {
		t.Error("different timestamps produced identical slugs")
	}
}
