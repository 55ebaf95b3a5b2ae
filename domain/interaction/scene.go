package interaction

import "github.com/Jovicsi/flowminds.ai/domain/core/entities"

func findNode(scene Scene, id string) (entities.Node, bool) {
	for _, n := range scene.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return entities.Node{}, false
}
