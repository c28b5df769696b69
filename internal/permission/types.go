package permission

// Flags is a bitmask of page-wiki permissions. Bit values match the distillation's original flag layout exactly so
// stored bitmasks remain meaningful across implementations.
type Flags uint8

// Individual permission bits.
const (
	FlagNone              Flags = 0
	FlagView              Flags = 1 << 0
	FlagRename            Flags = 1 << 1
	FlagEdit              Flags = 1 << 2
	FlagCreate            Flags = 1 << 3
	FlagDelete            Flags = 1 << 4
	FlagManagePermissions Flags = 1 << 5
	FlagManageBindings    Flags = 1 << 6

	// FlagDefault is seeded onto a guild's @everyone role when none is configured.
	FlagDefault = FlagCreate | FlagView | FlagRename | FlagEdit
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagView, "view"},
	{FlagRename, "rename"},
	{FlagEdit, "edit"},
	{FlagCreate, "create"},
	{FlagDelete, "delete"},
	{FlagManagePermissions, "manage_permissions"},
	{FlagManageBindings, "manage_bindings"},
}

// Has reports whether f has every bit set in required.
func (f Flags) Has(required Flags) bool {
	return f&required == required
}

// Add returns f with other's bits set.
func (f Flags) Add(other Flags) Flags {
	return f | other
}

// Remove returns f with other's bits cleared.
func (f Flags) Remove(other Flags) Flags {
	return f &^ other
}

// Names returns the human-readable names of every individual bit set in f, in a fixed order. FlagNone and FlagDefault
// are not named bits themselves; Names always reports the constituent bits.
func (f Flags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Flags) String() string {
	names := f.Names()
	if len(names) == 0 {
		return "none"
	}
	s := names[0]
	for _, n := range names[1:] {
		s += "|" + n
	}
	return s
}
