package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	w.digestPlayer(h, &tmp)
	w.digestPolicy(h, &tmp)
	w.digestPieces(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestPlayer(h hashWriter, tmp *[8]byte) {
	digestWriteF64(h, tmp, w.player.Distance())
	for _, v := range w.player.Pos().Array() {
		digestWriteF64(h, tmp, v)
	}
	digestWriteI64(h, tmp, int64(w.track.PlayerIndex()))
}

func (w *World) digestPolicy(h hashWriter, tmp *[8]byte) {
	seed, draws := w.track.RNG()
	digestWriteI64(h, tmp, seed)
	digestWriteU64(h, tmp, draws)

	st := w.track.State()
	digestWriteI64(h, tmp, int64(st.ConsecutiveStraights))
	digestWriteI64(h, tmp, int64(st.ConsecutiveCurves))
	digestWriteI64(h, tmp, int64(st.StraightsUntilNextCurve))
	h.Write([]byte{byte(st.Last), boolByte(st.HasLast)})
}

func (w *World) digestPieces(h hashWriter, tmp *[8]byte) {
	pieces := w.track.Pieces()
	digestWriteU64(h, tmp, uint64(len(pieces)))
	for _, p := range pieces {
		digestWriteU64(h, tmp, p.Ordinal)
		h.Write([]byte(p.TemplateID))
		h.Write([]byte{0, boolByte(p.Corrected), boolByte(p.Forced)})
		for _, v := range p.Transform.Pos.Array() {
			digestWriteF64(h, tmp, v)
		}
		for _, v := range p.Transform.Rot.Array() {
			digestWriteF64(h, tmp, v)
		}
		digestWriteF64(h, tmp, p.PathStart)
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
