package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/medreport/entities"
	"github.com/giygas/medreport/logging"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
		stats    Stats
	}{
		{
			name:     "one name per line",
			input:    "Tab. Zerodol-SP\nCap. Lyser\n",
			expected: []string{"Tab. Zerodol-SP", "Cap. Lyser"},
			stats:    Stats{Lines: 2, Names: 2},
		},
		{
			name:     "comments blanks and duplicates",
			input:    "# quick add\n\nCap. Lyser\n  Cap. Lyser  \nTab. Pantop-D\n",
			expected: []string{"Cap. Lyser", "Tab. Pantop-D"},
			stats:    Stats{Lines: 5, Names: 2, Empty: 2, Duplicates: 1},
		},
		{
			name: "bdpm specialties",
			input: "60002283\tANASTROZOLE ACCORD 1 mg, comprimé pelliculé\tcomprimé pelliculé\torale\n" +
				"60003620\tDOLIPRANE 500 mg, gélule\tgélule\torale\n" +
				"60009999\t\tgélule\n",
			expected: []string{"ANASTROZOLE ACCORD 1 mg, comprimé pelliculé", "DOLIPRANE 500 mg, gélule"},
			stats:    Stats{Lines: 3, Names: 2, Malformed: 1},
		},
		{
			name:     "byte order mark",
			input:    "\ufeffTab. Ibuprofen 400mg\n",
			expected: []string{"Tab. Ibuprofen 400mg"},
			stats:    Stats{Lines: 1, Names: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, stats, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !slices.Equal([]string(names), tt.expected) {
				t.Errorf("Expected %q, got %q", tt.expected, names)
			}
			if stats != tt.stats {
				t.Errorf("Expected stats %+v, got %+v", tt.stats, stats)
			}
		})
	}
}

func TestLoad_EmptySourceIsBuiltIn(t *testing.T) {
	names, err := Load(context.Background(), "", logging.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(names, entities.DefaultCatalog()) {
		t.Errorf("Expected the default catalog, got %q", names)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.txt")
	if err := os.WriteFile(path, []byte("Tab. Paracétamol 500mg\nCap. Lyser\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	names, err := Load(context.Background(), path, logging.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(names) != 2 || !names.Contains("Tab. Paracétamol 500mg") {
		t.Errorf("Unexpected catalog %q", names)
	}
	if got := names.Search("PARACETAMOL"); len(got) != 1 {
		t.Errorf("Expected accent-insensitive search to find the entry, got %q", got)
	}
}

func TestLoad_Latin1(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("60003620\tDOLIPRANE 500 mg, gélule\tgélule\n")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "CIS_bdpm.txt")
	if err := os.WriteFile(path, []byte(latin1), 0o600); err != nil {
		t.Fatal(err)
	}

	names, err := Load(context.Background(), path, logging.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(names) != 1 || names[0] != "DOLIPRANE 500 mg, gélule" {
		t.Errorf("Expected the name decoded to UTF-8, got %q", names)
	}
}

func TestLoad_URL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog.txt":
			_, _ = w.Write([]byte("Tab. Zerodol-SP\nTab. Pantop-D\n"))
		case "/empty.txt":
			_, _ = w.Write([]byte("\n# nothing\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	names, err := Load(context.Background(), ts.URL+"/catalog.txt", logging.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Expected 2 names, got %q", names)
	}

	if _, err := Load(context.Background(), ts.URL+"/missing.txt", logging.Discard()); err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("Expected a 404 error, got %v", err)
	}
	if _, err := Load(context.Background(), ts.URL+"/empty.txt", logging.Discard()); err == nil {
		t.Error("Expected an error for a catalog without names")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "failed to open catalog") {
		t.Errorf("Expected an open error, got %v", err)
	}
}
