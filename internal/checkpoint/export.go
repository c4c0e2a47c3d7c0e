package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kgembed/compounde3d/pkg/kg"
	"github.com/kgembed/compounde3d/pkg/model"
)

// ExportText writes the embeddings as plain text, one named row per line
// with a "rows dim" header, for downstream tooling.
func ExportText(dir string, m *model.Model, g *kg.KnowledgeGraph) error {
	if err := exportMatrix(filepath.Join(dir, "entity_embedding.txt"), m.Entity, m.EntityDim, g.GetEntityName); err != nil {
		return err
	}
	return exportMatrix(filepath.Join(dir, "relation_embedding.txt"), m.Relation, m.RelationDim, g.GetRelationName)
}

func exportMatrix(path string, mat [][]float64, dim int, name func(int64) string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d %d\n", len(mat), dim)
	for i, row := range mat {
		fmt.Fprintf(w, "%s", name(int64(i)))
		for _, v := range row {
			fmt.Fprintf(w, " %.6f", v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
