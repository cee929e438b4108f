package toolchain

import (
	"runtime"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "msvc", want: "msvc"},
		{name: "gnu", want: "gnu"},
		{name: "clang", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && got.Name != tt.want {
				t.Errorf("Lookup(%q).Name = %q, want %q", tt.name, got.Name, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	got, err := Lookup("")
	if err != nil {
		t.Fatal(err)
	}
	want := "gnu"
	if runtime.GOOS == "windows" {
		want = "msvc"
	}
	if got.Name != want {
		t.Errorf("default toolchain = %q, want %q", got.Name, want)
	}
}

func TestExeAndWith(t *testing.T) {
	if got := MSVC.Exe("sqldiff"); got != "sqldiff.exe" {
		t.Errorf("MSVC.Exe = %q", got)
	}
	if got := GNU.Exe("sqldiff"); got != "sqldiff" {
		t.Errorf("GNU.Exe = %q", got)
	}
	tc := GNU.With("clang", "", "main.mk")
	if tc.Compiler != "clang" || tc.BuildTool != "make" || tc.Makefile != "main.mk" {
		t.Errorf("With = %+v", tc)
	}
	if GNU.Compiler != "cc" {
		t.Error("With modified the package-level value")
	}
}
