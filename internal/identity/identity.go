// Package identity decodes the raw benchmark identification fields written
// by cargo-criterion into a higher-level view where only valid combinations
// of fields are representable.
//
// The upstream metadata schema is intentionally loose: the same four fields
// encode several different benchmark registration styles. Decode is the
// product of reverse-engineering those rules; it never guesses, and it keeps
// the one genuinely undecidable combination as an explicit Ambiguous variant.
package identity

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/critdex/critdex/internal/errors"
)

// RawIdentity holds the benchmark identification fields exactly as decoded
// from a benchmark.cbor file. The interpretation of the fields depends on how
// the underlying benchmark was registered; use Decode for a disambiguated
// view. Strings are never normalized or case-folded.
type RawIdentity struct {
	// GroupOrFunctionID is the group name for grouped benchmarks and the
	// function name otherwise.
	GroupOrFunctionID string `cbor:"group_id"`

	// FunctionIDInGroup names the function within a benchmark group.
	FunctionIDInGroup *string `cbor:"function_id"`

	// ValueStr is the textual form of the benchmark's input parameter.
	ValueStr *string `cbor:"value_str"`

	// Throughput is the declared throughput, only valid for grouped
	// benchmarks.
	Throughput *Throughput `cbor:"throughput"`
}

// Identity is the disambiguated interpretation of a RawIdentity. The three
// implementations are Function, InGroup and AmbiguousFromParameter.
type Identity interface {
	isIdentity()

	// ExpectedPath returns the relative data-directory path that
	// cargo-criterion derives from this identity, with filename-unsafe
	// characters replaced. It can be cross-checked against the directory a
	// benchmark unit was actually found in.
	ExpectedPath() string
}

// Function identifies a plain, non-grouped benchmark registered under a bare
// function name.
type Function struct {
	Name string
}

// InGroup identifies a benchmark that is part of a benchmark group.
type InGroup struct {
	GroupID    string
	Member     Member
	Throughput *Throughput
}

// AmbiguousFromParameter is a (primary, parameter) pair that the upstream
// schema cannot disambiguate: it is either a grouped benchmark keyed purely
// by parameter, or a non-grouped benchmark with an explicit
// (function, parameter) identifier. Both readings must be surfaced to the
// caller; collapsing them by heuristic would hide a real upstream defect.
type AmbiguousFromParameter struct {
	GroupOrFunctionID string
	Parameter         string
}

func (Function) isIdentity()               {}
func (InGroup) isIdentity()                {}
func (AmbiguousFromParameter) isIdentity() {}

// Member identifies a benchmark within its group. The three implementations
// are MemberString, MemberFromParameter and MemberFull.
type Member interface {
	isMember()

	// dirName returns the sanitized directory name(s) for this member,
	// relative to the group directory.
	dirName() string
}

// MemberString is a member identified by a plain name string.
type MemberString struct {
	Name string
}

// MemberFromParameter is a member identified purely by its input parameter.
//
// Due to the upstream schema ambiguity, not every benchmark registered this
// way decodes into this type: those without throughput decode as
// AmbiguousFromParameter instead.
type MemberFromParameter struct {
	Parameter string
}

// MemberFull is a member identified by both a function name and an input
// parameter.
type MemberFull struct {
	FunctionName string
	Parameter    string
}

func (MemberString) isMember()        {}
func (MemberFromParameter) isMember() {}
func (MemberFull) isMember()          {}

func (m MemberString) dirName() string        { return SanitizeDirName(m.Name) }
func (m MemberFromParameter) dirName() string { return SanitizeDirName(m.Parameter) }
func (m MemberFull) dirName() string {
	return filepath.Join(SanitizeDirName(m.FunctionName), SanitizeDirName(m.Parameter))
}

// Decode classifies a RawIdentity into exactly one Identity variant based on
// which optional fields are present. The mapping is total over the eight
// presence combinations; the single schema-violating combination (throughput
// on a non-grouped benchmark) returns an IDENTITY error rather than a guess.
func Decode(raw *RawIdentity) (Identity, error) {
	switch {
	// Function and value are both absent, so the benchmark cannot be part
	// of a group (group members always carry at least one of them).
	case raw.FunctionIDInGroup == nil && raw.ValueStr == nil:
		if raw.Throughput != nil {
			// The tool only lets grouped benchmarks declare throughput.
			return nil, errors.NewIdentityError(errors.CodeInvalidIdentity,
				fmt.Sprintf("benchmark %q declares throughput but is not part of a group", raw.GroupOrFunctionID))
		}
		return Function{Name: raw.GroupOrFunctionID}, nil

	// Value present, function absent: grouped iff throughput is present.
	// Without throughput the metadata is genuinely ambiguous.
	case raw.FunctionIDInGroup == nil:
		if raw.Throughput != nil {
			return InGroup{
				GroupID:    raw.GroupOrFunctionID,
				Member:     MemberFromParameter{Parameter: *raw.ValueStr},
				Throughput: raw.Throughput,
			}, nil
		}
		return AmbiguousFromParameter{
			GroupOrFunctionID: raw.GroupOrFunctionID,
			Parameter:         *raw.ValueStr,
		}, nil

	// Function present, value absent: group member registered under a plain
	// name string.
	case raw.ValueStr == nil:
		return InGroup{
			GroupID:    raw.GroupOrFunctionID,
			Member:     MemberString{Name: *raw.FunctionIDInGroup},
			Throughput: raw.Throughput,
		}, nil

	// Both present: group member with a full (function, parameter)
	// identifier.
	default:
		return InGroup{
			GroupID:    raw.GroupOrFunctionID,
			Member: MemberFull{
				FunctionName: *raw.FunctionIDInGroup,
				Parameter:    *raw.ValueStr,
			},
			Throughput: raw.Throughput,
		}, nil
	}
}

// ExpectedPath for a plain function benchmark is the sanitized function name.
func (f Function) ExpectedPath() string {
	return SanitizeDirName(f.Name)
}

// ExpectedPath for a grouped benchmark is the sanitized group directory
// followed by the member's directory name(s).
func (g InGroup) ExpectedPath() string {
	return filepath.Join(SanitizeDirName(g.GroupID), g.Member.dirName())
}

// ExpectedPath for the ambiguous variant: both readings place the data under
// <primary>/<parameter>, so the path is well-defined even though the
// interpretation is not.
func (a AmbiguousFromParameter) ExpectedPath() string {
	return filepath.Join(SanitizeDirName(a.GroupOrFunctionID), SanitizeDirName(a.Parameter))
}

// filenameUnsafe is the set of characters cargo-criterion replaces when it
// derives directory names from identity strings.
const filenameUnsafe = `?"/\*<>:|^`

// SanitizeDirName maps an identity string to the directory name
// cargo-criterion generates for it.
func SanitizeDirName(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(filenameUnsafe, r) {
			return '_'
		}
		return r
	}, s)
}

// CrossCheck verifies that the decoded identity's expected directory path
// matches the relative path a benchmark unit was actually found under.
func CrossCheck(id Identity, relativePath string) error {
	expected := id.ExpectedPath()
	if filepath.Clean(relativePath) != filepath.Clean(expected) {
		return errors.NewIdentityError(errors.CodePathMismatch,
			fmt.Sprintf("decoded identity maps to directory %q but data was found under %q", expected, relativePath))
	}
	return nil
}
