package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Window     Window     `yaml:"window"`
	Connection Connection `yaml:"connection"`
	Straights  Straights  `yaml:"straights"`
	Meander    Meander    `yaml:"meander"`
	Player     Player     `yaml:"player"`
}

// Window is the sliding run of active pieces kept around the player.
type Window struct {
	SegmentsBehindPlayer      int     `yaml:"segments_behind_player"`
	SegmentsAheadOfPlayer     int     `yaml:"segments_ahead_of_player"`
	GenerationTriggerDistance float64 `yaml:"generation_trigger_distance"`
	EvictHysteresis           int     `yaml:"evict_hysteresis"`
	// LocateBy picks the player's segment: "z" by piece origin z, "path" by distance along the chain.
	LocateBy string `yaml:"locate_by"`
}

type Connection struct {
	Tolerance           float64 `yaml:"tolerance"`
	OverlapShrink       float64 `yaml:"overlap_shrink"`
	MaxPlacementRetries int     `yaml:"max_placement_retries"`
}

type Straights struct {
	EnforceOrder bool `yaml:"enforce_order"`
	AllowRepeats bool `yaml:"allow_repeats"`
}

type Meander struct {
	MinStraightBeforeCurve int     `yaml:"min_straight_before_curve"`
	MaxStraightBeforeCurve int     `yaml:"max_straight_before_curve"`
	MaxConsecutiveCurves   int     `yaml:"max_consecutive_curves"`
	BaseCurveChance        float64 `yaml:"base_curve_chance"`
}

type Player struct {
	SpeedPerTick float64 `yaml:"speed_per_tick"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         10,
		SnapshotEveryTicks: 600,
		Window: Window{
			SegmentsBehindPlayer:      2,
			SegmentsAheadOfPlayer:     2,
			GenerationTriggerDistance: 1,
			EvictHysteresis:           0,
			LocateBy:                  "z",
		},
		Connection: Connection{
			Tolerance:           0.01,
			OverlapShrink:       0.95,
			MaxPlacementRetries: 5,
		},
		Straights: Straights{
			EnforceOrder: true,
			AllowRepeats: true,
		},
		Meander: Meander{
			MinStraightBeforeCurve: 2,
			MaxStraightBeforeCurve: 4,
			MaxConsecutiveCurves:   2,
			BaseCurveChance:        0.3,
		},
		Player: Player{SpeedPerTick: 0.5},
	}
}

// Load reads path over Defaults(), so omitted keys keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	w := t.Window
	if w.SegmentsBehindPlayer < 0 || w.SegmentsAheadOfPlayer < 1 {
		return fmt.Errorf("window: need segments_behind_player >= 0 and segments_ahead_of_player >= 1")
	}
	if w.GenerationTriggerDistance < 0 || w.EvictHysteresis < 0 {
		return fmt.Errorf("window: trigger distance and hysteresis must be >= 0")
	}
	if w.LocateBy != "z" && w.LocateBy != "path" {
		return fmt.Errorf("window.locate_by must be z or path, got %q", w.LocateBy)
	}
	c := t.Connection
	if c.Tolerance < 0 {
		return fmt.Errorf("connection.tolerance must be >= 0")
	}
	if c.OverlapShrink <= 0 || c.OverlapShrink > 1 {
		return fmt.Errorf("connection.overlap_shrink must be in (0,1]")
	}
	if c.MaxPlacementRetries < 0 {
		return fmt.Errorf("connection.max_placement_retries must be >= 0")
	}
	m := t.Meander
	if m.MinStraightBeforeCurve < 1 || m.MaxStraightBeforeCurve < m.MinStraightBeforeCurve {
		return fmt.Errorf("meander: need 1 <= min_straight_before_curve <= max_straight_before_curve")
	}
	if m.MaxConsecutiveCurves < 1 {
		return fmt.Errorf("meander.max_consecutive_curves must be >= 1")
	}
	if m.BaseCurveChance < 0 || m.BaseCurveChance > 1 {
		return fmt.Errorf("meander.base_curve_chance must be in [0,1]")
	}
	if t.Player.SpeedPerTick < 0 {
		return fmt.Errorf("player.speed_per_tick must be >= 0")
	}
	return nil
}
