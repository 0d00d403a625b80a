package emeus

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{Indent: "  ", SortKeys: true}

type tableauSnapshot struct {
	Rows       map[string]string
	Infeasible []string
	Edits      map[string]float64
	Stays      []string
}

// DumpTableau renders the current tableau state for diagnostics.
func (s *Solver) DumpTableau() string {
	snap := tableauSnapshot{
		Rows:  make(map[string]string, len(s.rows)),
		Edits: make(map[string]float64, len(s.editInfos)),
	}
	for v, e := range s.rows {
		snap.Rows[v.name] = e.String()
	}
	for _, v := range s.infeasibleRows.sorted() {
		snap.Infeasible = append(snap.Infeasible, v.name)
	}
	for v, info := range s.editInfos {
		snap.Edits[v.name] = info.prevConstant
	}
	for i, plus := range s.stayPlusErrorVars {
		snap.Stays = append(snap.Stays, fmt.Sprintf("%s/%s", plus.name, s.stayMinusErrorVars[i].name))
	}
	return dumpConfig.Sdump(snap)
}
