package connector

import (
	"fmt"

	"riverrun.ai/internal/sim/catalogs"
	"riverrun.ai/internal/sim/geom"
)

// Link is one piece laid by Chain.
type Link struct {
	Index      int
	TemplateID string
	Pos        geom.Vec3
	Start      geom.Vec3
	End        geom.Vec3
}

// Skip records a template Chain could not lay.
type Skip struct {
	Index      int
	TemplateID string
	Reason     string
}

// Chain lays n pieces in one shot by cycling through templates. Every piece keeps the identity
// rotation; the first sits at origin and each later one is translated so its primary start
// anchor lands on the previous piece's primary end anchor. A template without both anchors is
// skipped and the chain continues from the last laid piece.
func Chain(templates []catalogs.PieceTemplate, origin geom.Vec3, n int) ([]Link, []Skip) {
	if len(templates) == 0 || n <= 0 {
		return nil, nil
	}
	var (
		links []Link
		skips []Skip
		last  *Link
	)
	for i := 0; i < n; i++ {
		t := templates[i%len(templates)]
		starts, ends := catalogs.ResolveAnchors(t.Anchors)
		if len(starts) == 0 || len(ends) == 0 {
			skips = append(skips, Skip{Index: i, TemplateID: t.ID, Reason: missingReason(len(starts), len(ends))})
			continue
		}
		start := geom.FromArray(starts[0].Pos)
		end := geom.FromArray(ends[0].Pos)

		pos := origin
		if last != nil {
			pos = last.End.Sub(start)
		}
		links = append(links, Link{
			Index:      i,
			TemplateID: t.ID,
			Pos:        pos,
			Start:      pos.Add(start),
			End:        pos.Add(end),
		})
		last = &links[len(links)-1]
	}
	return links, skips
}

func missingReason(starts, ends int) string {
	switch {
	case starts == 0 && ends == 0:
		return "missing start and end anchors"
	case starts == 0:
		return "missing start anchor"
	case ends == 0:
		return "missing end anchor"
	}
	return fmt.Sprintf("starts=%d ends=%d", starts, ends)
}
