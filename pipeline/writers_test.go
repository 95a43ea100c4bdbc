package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

func detailedRecord() *models.ProductRecord {
	original := decimal.RequireFromString("4100")
	return &models.ProductRecord{
		ID:           "GF-12",
		Name:         "Glenfarclas 12",
		Price:        models.Price{Amount: decimal.RequireFromString("3490.50"), Currency: "RUB", Original: &original},
		Availability: models.AvailabilityInStock,
		Description:  "Speyside, sherry casks",
		Attributes:   map[string]string{"Volume": "0.7 l", "brand": "Glenfarclas"},
		URL:          "https://shop.example/product/glenfarclas-12",
		Region:       "krasnodar",
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{detailedRecord()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if strings.Join(rows[0], ",") != "id,name,price,currency,availability,description,attributes,url,region" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	row := rows[1]
	if row[0] != "GF-12" || row[2] != "3490.5" || row[3] != "RUB" || row[4] != "in_stock" || row[8] != "krasnodar" {
		t.Fatalf("unexpected row: %v", row)
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(row[6]), &attrs); err != nil || attrs["brand"] != "Glenfarclas" {
		t.Fatalf("attributes column = %q (%v)", row[6], err)
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	second := detailedRecord()
	second.ID = "TK-10"
	second.Price.Original = nil
	second.Attributes = map[string]string{}

	if err := writer.Write([]*models.ProductRecord{detailedRecord()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("target must not exist before Close, stat err = %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{second}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded []models.ProductRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json array: %v\n%s", err, data)
	}
	if len(decoded) != 2 {
		t.Fatalf("records=%d, want 2", len(decoded))
	}
	if decoded[0].ID != "GF-12" || !decoded[0].Price.Equal(detailedRecord().Price) {
		t.Fatalf("first record mismatch: %+v", decoded[0])
	}
	if decoded[1].ID != "TK-10" || decoded[1].Attributes == nil {
		t.Fatalf("second record mismatch: %+v", decoded[1])
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestJSONWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty output = %q, want []", data)
	}
}

func TestJSONWriterFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{detailedRecord()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat json: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Fatalf("file mode = %v, want 0644", perm)
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter("dual", filepath.Join(dir, "products.json"))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{detailedRecord()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, name := range []string{"products.csv", "products.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	if _, err := NewWriter("xml", filepath.Join(dir, "products.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
