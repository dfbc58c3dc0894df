package types

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name  string
		want  Category
		class Class
		ok    bool
	}{
		{"uuid", CategoryUUID, ClassUUID, true},
		{"VARCHAR", CategoryVarchar, ClassText, true},
		{"Numeric", CategoryDecimal, ClassNumeric, true},
		{"jsonb", CategoryJSON, ClassJSON, true},
		{"timestamptz", CategoryTimestampTZ, ClassTemporal, true},
		{"bool", CategoryBoolean, ClassBoolean, true},
		{"bytea", CategoryBlob, ClassBinary, true},
		{"Status", CategoryUnknown, ClassOther, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("Lookup(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
			}
			if class := ClassOf(got); class != tt.class {
				t.Fatalf("ClassOf(%v) = %v, want %v", got, class, tt.class)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	if got := Canonical("varchar"); got != "VARCHAR" {
		t.Fatalf("Canonical(varchar) = %q", got)
	}
	if got := Canonical("Organization"); got != "Organization" {
		t.Fatalf("Canonical(Organization) = %q", got)
	}
}

func TestIntegerAndMap(t *testing.T) {
	if !IsInteger(CategoryBigSerial) || IsInteger(CategoryDecimal) {
		t.Fatal("IsInteger misclassified")
	}
	if !IsMapLike("hstore") || IsMapLike("TEXT") {
		t.Fatal("IsMapLike misclassified")
	}
}
