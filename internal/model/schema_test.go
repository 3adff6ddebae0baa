package model

import "testing"

func testTable() *SchemaTable {
	return &SchemaTable{
		Name: "orders",
		Columns: []SchemaColumn{
			{Name: "id", Type: "integer"},
			{Name: "status", Type: "text"},
		},
		PrimaryKey: []string{"id"},
		Indexes: []SchemaIndex{
			{Name: "idx_orders_status", Columns: []string{"status", "id"}},
		},
	}
}

func TestHasIndexOn(t *testing.T) {
	tbl := testTable()

	if !tbl.HasIndexOn("status") {
		t.Error("expected index on status")
	}
	if !tbl.HasIndexOn("STATUS") {
		t.Error("expected case-folded index match on STATUS")
	}
	// Only the leading key column of a composite index counts.
	if tbl.HasIndexOn("id") {
		t.Error("trailing index column must not count as indexed")
	}
	if tbl.HasIndexOn("missing") {
		t.Error("unexpected index on missing column")
	}
}

func TestColumnLookup(t *testing.T) {
	tbl := testTable()

	if c := tbl.Column("status"); c == nil || c.Type != "text" {
		t.Errorf("Column(status) = %+v, want text column", c)
	}
	if c := tbl.Column("nope"); c != nil {
		t.Errorf("Column(nope) = %+v, want nil", c)
	}
}
