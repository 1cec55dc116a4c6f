package ui

// Tree hierarchy symbols using box drawing characters
const (
	// Basic tree connectors
	TreeBranch     = "├── " // Branch connector (tee right + horizontal line + space)
	TreeLastBranch = "└── " // Last branch connector (bottom left corner + horizontal line + space)
	TreeVertical   = "│"    // Vertical line for continuing hierarchy

	// Spacing patterns for different indentation levels
	TreeContinue = "│   " // Vertical line + 3 spaces (parent has more siblings)
	TreeIndent   = "    " // 4 spaces (parent was last, no vertical line needed)
)

// TreePrefixBuilder helps build consistent tree prefixes based on hierarchy depth and position
type TreePrefixBuilder struct{}

// BuildPrefix generates a tree prefix based on depth, position, and parent positions
func (TreePrefixBuilder) BuildPrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var prefix string

	// Build prefix based on parent positions
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			prefix += TreeIndent // No vertical line if parent was last
		} else {
			prefix += TreeContinue // Vertical line if parent has siblings below
		}
	}

	// Add the current level connector
	if isLast {
		prefix += TreeLastBranch
	} else {
		prefix += TreeBranch
	}

	return prefix
}

// BuildTreePrefix is the convenience form of TreePrefixBuilder.BuildPrefix.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	builder := TreePrefixBuilder{}
	return builder.BuildPrefix(depth, isLast, parentIsLast)
}
