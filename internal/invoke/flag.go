package invoke

import (
	"fmt"
	"sort"
	"strings"
)

// Flag is a compile-time feature of the engine.
type Flag int

const (
	FTS3 Flag = iota
	FTS4
	FTS5
	RTree
	Geopoly
	JSON1
	Session
	PreupdateHook
	Serialize
	MathFunctions
	DBStatVTab
	ColumnMetadata
	Stat4
	ExplainComments

	numFlags
)

var flagNames = [...]string{
	FTS3:            "FTS3",
	FTS4:            "FTS4",
	FTS5:            "FTS5",
	RTree:           "RTREE",
	Geopoly:         "GEOPOLY",
	JSON1:           "JSON1",
	Session:         "SESSION",
	PreupdateHook:   "PREUPDATE_HOOK",
	Serialize:       "SERIALIZE",
	MathFunctions:   "MATH_FUNCTIONS",
	DBStatVTab:      "DBSTAT_VTAB",
	ColumnMetadata:  "COLUMN_METADATA",
	Stat4:           "STAT4",
	ExplainComments: "EXPLAIN_COMMENTS",
}

const definePrefix = "SQLITE_ENABLE_"

func (f Flag) String() string {
	if f >= 0 && f < numFlags {
		return flagNames[f]
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// Define returns the preprocessor option enabling f.
func (f Flag) Define() string {
	return "-D" + definePrefix + f.String() + "=1"
}

// AllFlags returns every known flag in name order.
func AllFlags() []Flag {
	var s FlagSet
	for f := Flag(0); f < numFlags; f++ {
		s.Add(f)
	}
	return s.Flags()
}

// ParseFlag accepts "NAME=1", "SQLITE_ENABLE_NAME=1" or a bare NAME,
// case-insensitively.
func ParseFlag(s string) (Flag, error) {
	name, value, hasValue := strings.Cut(strings.TrimSpace(s), "=")
	if hasValue && value != "1" {
		return 0, fmt.Errorf("flag %s: only =1 is supported, got %q", name, value)
	}
	name = strings.ToUpper(name)
	name = strings.TrimPrefix(name, definePrefix)
	for f, n := range flagNames {
		if n == name {
			return Flag(f), nil
		}
	}
	return 0, fmt.Errorf("unknown feature flag %q", s)
}

// FlagSet is a set of flags. The zero value is empty.
type FlagSet struct {
	bits uint32
}

// NewFlagSet returns a set holding flags.
func NewFlagSet(flags ...Flag) FlagSet {
	var s FlagSet
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

// ParseFlags parses each of specs with ParseFlag. Duplicates collapse.
func ParseFlags(specs []string) (FlagSet, error) {
	var s FlagSet
	for _, spec := range specs {
		f, err := ParseFlag(spec)
		if err != nil {
			return FlagSet{}, err
		}
		s.Add(f)
	}
	return s, nil
}

func (s *FlagSet) Add(f Flag) {
	s.bits |= 1 << uint(f)
}

func (s FlagSet) Has(f Flag) bool {
	return s.bits&(1<<uint(f)) != 0
}

func (s FlagSet) Len() int {
	n := 0
	for f := Flag(0); f < numFlags; f++ {
		if s.Has(f) {
			n++
		}
	}
	return n
}

// Union returns the flags in either set.
func (s FlagSet) Union(o FlagSet) FlagSet {
	return FlagSet{bits: s.bits | o.bits}
}

// Flags returns the members sorted by name.
func (s FlagSet) Flags() []Flag {
	var out []Flag
	for f := Flag(0); f < numFlags; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Defines returns the preprocessor options for the members, sorted.
func (s FlagSet) Defines() []string {
	var out []string
	for _, f := range s.Flags() {
		out = append(out, f.Define())
	}
	return out
}

// Names returns the member names, sorted.
func (s FlagSet) Names() []string {
	var out []string
	for _, f := range s.Flags() {
		out = append(out, f.String())
	}
	return out
}

// ReleaseFlags is the feature set of the official release builds.
var ReleaseFlags = NewFlagSet(FTS3, FTS4, FTS5, RTree, JSON1, Geopoly, Session, PreupdateHook, Serialize, MathFunctions)
