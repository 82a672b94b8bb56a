package wipe

// PassKind distinguishes destructive overwrite passes from the terminal
// format pass.
type PassKind int

const (
	Overwrite PassKind = iota
	FormatAndPartition
)

func (k PassKind) String() string {
	if k == FormatAndPartition {
		return "format"
	}
	return "overwrite"
}

// PassSpec is one step of a plan. Index is 0-based; Filesystem is set only
// for the format pass.
type PassSpec struct {
	Index       int
	Kind        PassKind
	Filesystem  Filesystem
	TotalPasses int
}

// Plan expands a method into its passes. The last pass formats the drive
// with fs; every other pass overwrites it.
func Plan(m Method, fs Filesystem) []PassSpec {
	total := m.PassCount()
	passes := make([]PassSpec, total)
	for i := range passes {
		passes[i] = PassSpec{Index: i, Kind: Overwrite, TotalPasses: total}
	}
	last := &passes[total-1]
	last.Kind = FormatAndPartition
	last.Filesystem = fs
	return passes
}
