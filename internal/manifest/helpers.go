package manifest

// GetPackage returns the named package, or PackageNotFoundError.
func (m *Manifest) GetPackage(name string) (*Package, error) {
	pkg, ok := m.Packages[name]
	if !ok {
		return nil, &PackageNotFoundError{Name: name}
	}
	return &pkg, nil
}

// GetTargetedPackage returns the TargetedPackage for (name, target), or
// MissingTargetInPackageError if the package exists but has no entry for
// target.
func (m *Manifest) GetTargetedPackage(name, target string) (*TargetedPackage, error) {
	pkg, err := m.GetPackage(name)
	if err != nil {
		return nil, err
	}
	tp, ok := pkg.Targets[target]
	if !ok {
		return nil, &MissingTargetInPackageError{Package: name, Target: target}
	}
	return &tp, nil
}

// RenameComponent applies the manifest's renames table: if c.Pkg is a key
// of Renames, substitute the mapped pkg_name; otherwise return c
// unchanged (spec.md §4.3).
func (m *Manifest) RenameComponent(c ComponentID) ComponentID {
	r, ok := m.Renames[c.Pkg]
	if !ok {
		return c
	}
	return ComponentID{Pkg: r.To, Target: c.Target}
}

// GetProfileComponents expands a named profile into fully-qualified
// Components targeted at hostTarget (spec.md §4.3). Member pkg_names not
// present in Packages are silently dropped — they are optional-in-future
// components the manifest no longer (or not yet) carries.
func (m *Manifest) GetProfileComponents(profile, hostTarget string) []ComponentID {
	names := m.Profiles[profile]
	out := make([]ComponentID, 0, len(names))
	for _, name := range names {
		if _, ok := m.Packages[name]; !ok {
			continue
		}
		out = append(out, ComponentID{Pkg: name, Target: hostTarget})
	}
	return out
}

// RequiredComponents returns the required (is_extension=false) component
// list of the `rust` package for hostTarget, resolved to ComponentIDs.
// This is the set spec.md §4.4 step 4 installs on a first_install.
func (m *Manifest) RequiredComponents(hostTarget string) ([]ComponentID, error) {
	tp, err := m.GetTargetedPackage("rust", hostTarget)
	if err != nil {
		return nil, err
	}
	out := make([]ComponentID, 0, len(tp.Components))
	for _, c := range tp.Components {
		out = append(out, m.RenameComponent(c.ID()))
	}
	return out, nil
}

// ExtensionComponents returns the optional (is_extension=true) component
// list of the `rust` package for hostTarget.
func (m *Manifest) ExtensionComponents(hostTarget string) ([]ComponentID, error) {
	tp, err := m.GetTargetedPackage("rust", hostTarget)
	if err != nil {
		return nil, err
	}
	out := make([]ComponentID, 0, len(tp.Extensions))
	for _, c := range tp.Extensions {
		out = append(out, m.RenameComponent(c.ID()))
	}
	return out, nil
}

// IsListed reports whether c (as a component OR extension) is listed on
// the `rust` package for hostTarget, after rename resolution. Used by
// the reconciliation engine to decide whether a previously-installed
// extension must be preserved (spec.md §4.4 step 4).
func (m *Manifest) IsListed(c ComponentID, hostTarget string) bool {
	tp, err := m.GetTargetedPackage("rust", hostTarget)
	if err != nil {
		return false
	}
	resolved := m.RenameComponent(c)
	for _, ref := range tp.Components {
		if m.RenameComponent(ref.ID()) == resolved {
			return true
		}
	}
	for _, ref := range tp.Extensions {
		if m.RenameComponent(ref.ID()) == resolved {
			return true
		}
	}
	return false
}

// IsExtension reports whether c is classified as an extension (rather
// than required) of the `rust` package for hostTarget.
func (m *Manifest) IsExtension(c ComponentID, hostTarget string) bool {
	tp, err := m.GetTargetedPackage("rust", hostTarget)
	if err != nil {
		return false
	}
	resolved := m.RenameComponent(c)
	for _, ref := range tp.Extensions {
		if m.RenameComponent(ref.ID()) == resolved {
			return true
		}
	}
	return false
}
