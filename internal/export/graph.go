// Package export flattens a canonical store snapshot into a portable
// graph document. The export is a pure transformation over snapshot data;
// it needs no graph backend and no live store connection.
package export

import (
	"sort"
	"time"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// Node is an entity in the exported graph.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	Source   string   `json:"source"`
	Archived bool     `json:"archived,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
}

// Edge is a directed relationship in the exported graph. Alias ownership
// is folded into the node's alias list rather than emitted as edges, so
// every edge here is an entity-to-entity relationship.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// GraphExport is the flattened view of one namespace.
type GraphExport struct {
	Namespace string    `json:"namespace"`
	TakenAt   time.Time `json:"taken_at"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
}

// Graph converts a snapshot into its export form. Aliases referencing
// unknown entities are dropped, as are relationship rows with a dangling
// endpoint; the snapshot is trusted but not assumed perfect. Output order
// is deterministic: nodes by ID, edges by (from, to, type), aliases
// alphabetical with the canonical name excluded.
func Graph(snap *storage.SnapshotData) *GraphExport {
	out := &GraphExport{
		Namespace: snap.Namespace,
		TakenAt:   snap.TakenAt,
		Nodes:     make([]Node, 0, len(snap.Entities)),
		Edges:     make([]Edge, 0, len(snap.Relationships)),
	}

	byID := make(map[string]*types.CanonicalEntity, len(snap.Entities))
	aliasesOf := make(map[string][]string)
	for _, e := range snap.Entities {
		byID[e.ID] = e
	}
	for _, a := range snap.Aliases {
		owner, ok := byID[a.EntityID]
		if !ok {
			continue
		}
		if a.Normalized == owner.NormalizedName {
			// The self-alias restates the canonical name.
			continue
		}
		aliasesOf[a.EntityID] = append(aliasesOf[a.EntityID], a.Text)
	}

	for _, e := range snap.Entities {
		aliases := aliasesOf[e.ID]
		sort.Strings(aliases)
		out.Nodes = append(out.Nodes, Node{
			ID:       e.ID,
			Name:     e.Name,
			Type:     e.Type,
			Source:   string(e.Source),
			Archived: e.Archived,
			Aliases:  aliases,
		})
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })

	for _, r := range snap.Relationships {
		if _, ok := byID[r.FromID]; !ok {
			continue
		}
		if _, ok := byID[r.ToID]; !ok {
			continue
		}
		out.Edges = append(out.Edges, Edge{From: r.FromID, To: r.ToID, Type: r.Type})
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		a, b := out.Edges[i], out.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Type < b.Type
	})

	return out
}
