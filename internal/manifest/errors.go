package manifest

import "fmt"

// ParsingError wraps a TOML decode failure with the source path spec.md
// §4.3 requires ("a typed error that includes the source path and the
// offending line/field").
type ParsingError struct {
	Path string
	Err  error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("failed to parse manifest %s: %v", e.Path, e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// UnsupportedManifestVersionError is spec.md §3.3: any manifest-version
// other than "2" is a fatal parse error.
type UnsupportedManifestVersionError struct {
	Path    string
	Version string
}

func (e *UnsupportedManifestVersionError) Error() string {
	return fmt.Sprintf("%s: unsupported manifest-version %q, expected \"2\"", e.Path, e.Version)
}

// PackageNotFoundError is spec.md §4.3's GetPackage failure mode.
type PackageNotFoundError struct {
	Name string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package not found: %s", e.Name)
}

// MissingTargetInPackageError is raised when a package has no entry for
// the requested target.
type MissingTargetInPackageError struct {
	Package string
	Target  string
}

func (e *MissingTargetInPackageError) Error() string {
	return fmt.Sprintf("package %s has no target %s", e.Package, e.Target)
}

// InvalidComponentReferenceError is spec.md §3.3's invariant that every
// component/extension must resolve (after renames) to a packages entry,
// and that a component cannot appear in both components and extensions
// of the same target.
type InvalidComponentReferenceError struct {
	Package string
	Target  string
	Detail  string
}

func (e *InvalidComponentReferenceError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Package, e.Target, e.Detail)
}

// InvalidHashError is spec.md §3.3's "hashes are lowercase hex of length
// 64" invariant.
type InvalidHashError struct {
	Package string
	Target  string
	Field   string
	Value   string
}

func (e *InvalidHashError) Error() string {
	return fmt.Sprintf("%s/%s: field %s has invalid hash %q (expected 64 lowercase hex characters)", e.Package, e.Target, e.Field, e.Value)
}
