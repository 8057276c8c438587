package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemapRoot(t *testing.T) {
	tests := []struct {
		name    string
		srcPath string
		srcRoot string
		tgtRoot string
		want    string
	}{
		{"root only", `OldProj`, "OldProj", "NewProj", `NewProj`},
		{"swap root", `OldProj\Web\Auth`, "OldProj", "NewProj", `NewProj\Web\Auth`},
		{"swap root case-insensitive", `oldproj\Web`, "OldProj", "NewProj", `NewProj\Web`},
		{"foreign root nests under target", `Other\Web`, "OldProj", "NewProj", `NewProj\Other\Web`},
		{"target root with subtree", `OldProj\Web`, "OldProj", `NewProj\Migrated`, `NewProj\Migrated\Web`},
		{"empty path collapses to root", "", "OldProj", "NewProj", "NewProj"},
		{"blank path collapses to root", "   ", "OldProj", "NewProj", "NewProj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemapRoot(tt.srcPath, tt.srcRoot, tt.tgtRoot))
		})
	}
}
