// Package player is a stand-in for the canoe: it drifts down the river along the chain of
// anchor points and reports where it is.
package player

import (
	"riverrun.ai/internal/sim/geom"
	"riverrun.ai/internal/sim/river/track"
)

// PositionProvider is what the track needs from a player.
type PositionProvider interface {
	// Longitudinal is the coordinate the track locates the player by.
	Longitudinal() float64
	// ProgressAhead is how much river is left in front of the player.
	ProgressAhead() float64
}

type Follower struct {
	speed    float64
	locateBy string

	distance float64
	pos      geom.Vec3
	ahead    float64
}

// State is the resumable part of a Follower.
type State struct {
	Distance float64   `json:"distance"`
	Pos      geom.Vec3 `json:"pos"`
	Ahead    float64   `json:"ahead"`
}

func NewFollower(speedPerTick float64, locateBy string) *Follower {
	if locateBy == "" {
		locateBy = track.LocateByZ
	}
	return &Follower{speed: speedPerTick, locateBy: locateBy}
}

// Place puts the follower at path distance d on pieces without moving it forward.
func (f *Follower) Place(pieces []track.PlacedPiece, d float64) {
	f.distance = d
	f.resolve(pieces)
}

// Step advances one tick along pieces. The follower never passes the end of the last piece.
func (f *Follower) Step(pieces []track.PlacedPiece) {
	f.distance += f.speed
	f.resolve(pieces)
}

func (f *Follower) resolve(pieces []track.PlacedPiece) {
	if len(pieces) == 0 {
		return
	}
	first, last := pieces[0], pieces[len(pieces)-1]
	if f.distance < first.PathStart {
		f.distance = first.PathStart
	}
	if f.distance > last.PathEnd() {
		f.distance = last.PathEnd()
	}
	f.ahead = last.PathEnd() - f.distance

	for _, p := range pieces {
		if f.distance > p.PathEnd() {
			continue
		}
		t := 0.0
		if p.Chord > 0 {
			t = (f.distance - p.PathStart) / p.Chord
		}
		f.pos = p.Start().Pos.Lerp(p.End().Pos, t)
		return
	}
}

func (f *Follower) Longitudinal() float64 {
	if f.locateBy == track.LocateByPath {
		return f.distance
	}
	return f.pos.Z
}

func (f *Follower) ProgressAhead() float64 { return f.ahead }
func (f *Follower) Distance() float64      { return f.distance }
func (f *Follower) Pos() geom.Vec3         { return f.pos }

func (f *Follower) Export() State { return State{Distance: f.distance, Pos: f.pos, Ahead: f.ahead} }

func (f *Follower) Restore(s State) {
	f.distance = s.Distance
	f.pos = s.Pos
	f.ahead = s.Ahead
}
