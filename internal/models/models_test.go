package models

import (
	"reflect"
	"strings"
	"testing"
)

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	tag := f.Tag.Get("gorm")
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestImage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Image{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "TableID", "index")
	assertGormTag(t, typ, "Status", "default:generating")
	assertGormTag(t, typ, "Status", "index")
	// The change feed filters on updated_at; it must be indexed and stored
	// in milliseconds.
	assertGormTag(t, typ, "UpdatedAt", "autoUpdateTime:milli")
	assertGormTag(t, typ, "UpdatedAt", "index")
	assertGormTag(t, typ, "CreatedAt", "autoCreateTime:milli")
	// The locked-state guard: unique so the database itself refuses a second
	// locked row per table, nullable so unlocked rows never collide.
	assertGormTag(t, typ, "LockedTable", "uniqueIndex")
	if f, _ := typ.FieldByName("LockedTable"); f.Type.String() != "*string" {
		t.Errorf("LockedTable type = %s, want *string", f.Type)
	}

	if f, _ := typ.FieldByName("TableID"); f.Type.String() != "*string" {
		t.Errorf("TableID type = %s, want *string (nullable for admin uploads)", f.Type)
	}
}

func TestImage_TableName(t *testing.T) {
	if got := (Image{}).TableName(); got != "images" {
		t.Errorf("table name = %q, want %q", got, "images")
	}
}

func TestImage_Table(t *testing.T) {
	img := Image{}
	if got := img.Table(); got != "" {
		t.Errorf("nil table id = %q, want empty", got)
	}
	id := "7"
	img.TableID = &id
	if got := img.Table(); got != "7" {
		t.Errorf("table = %q, want 7", got)
	}
}
