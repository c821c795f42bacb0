// Copyright (C) 2024 the rhub contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package graph

import (
	"fmt"
	"strings"
	"time"
)

// Graphviz renders the graph's current node and edge set as a `dot`
// snippet, for debugging. It never writes a file or shells out to the
// graphviz toolchain, only produces the textual representation.
func (g *Graph) Graphviz(timeout time.Duration) (string, error) {
	keys, forward, ok := g.snapshot(timeout)
	if !ok {
		return "", ErrLockTimeout
	}
	sortKeySlice(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", g.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, "\t%q;\n", string(k))
	}
	for _, from := range keys {
		for _, to := range sortedKeys(forward[from]) {
			fmt.Fprintf(&b, "\t%q -> %q;\n", string(from), string(to))
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}
