package layout

// Config is the board geometry. Anchors are given per side; the local player
// sits at the bottom of the scene.
type Config struct {
	ActiveLocal   Coordinates `mapstructure:"active_local"`
	ActiveRemote  Coordinates `mapstructure:"active_remote"`
	BenchLocal    Coordinates `mapstructure:"bench_local"`
	BenchRemote   Coordinates `mapstructure:"bench_remote"`
	HandLocal     Coordinates `mapstructure:"hand_local"`
	HandRemote    Coordinates `mapstructure:"hand_remote"`
	DeckLocal     Coordinates `mapstructure:"deck_local"`
	DeckRemote    Coordinates `mapstructure:"deck_remote"`
	DiscardLocal  Coordinates `mapstructure:"discard_local"`
	DiscardRemote Coordinates `mapstructure:"discard_remote"`
	PrizeLocal    Coordinates `mapstructure:"prize_local"`
	PrizeRemote   Coordinates `mapstructure:"prize_remote"`

	BenchSpacing    float64 `mapstructure:"bench_spacing"`
	HandRowCapacity int     `mapstructure:"hand_row_capacity"`
	HandSpacing     float64 `mapstructure:"hand_spacing"`
	HandRowSpacing  float64 `mapstructure:"hand_row_spacing"`
	PrizeColumns    int     `mapstructure:"prize_columns"`
	PrizeSpacingX   float64 `mapstructure:"prize_spacing_x"`
	PrizeSpacingY   float64 `mapstructure:"prize_spacing_y"`
	AttachOffsetX   float64 `mapstructure:"attach_offset_x"`
	AttachOffsetY   float64 `mapstructure:"attach_offset_y"`

	// Fallback is where unresolvable descriptors and orphaned attachments land.
	Fallback Coordinates `mapstructure:"fallback"`
}

// DefaultConfig lays the board out on a 1280x720 scene.
func DefaultConfig() Config {
	return Config{
		ActiveLocal:   Coordinates{X: 640, Y: 430},
		ActiveRemote:  Coordinates{X: 640, Y: 290},
		BenchLocal:    Coordinates{X: 400, Y: 560},
		BenchRemote:   Coordinates{X: 400, Y: 160},
		HandLocal:     Coordinates{X: 640, Y: 690},
		HandRemote:    Coordinates{X: 640, Y: 30},
		DeckLocal:     Coordinates{X: 1180, Y: 600},
		DeckRemote:    Coordinates{X: 100, Y: 120},
		DiscardLocal:  Coordinates{X: 1180, Y: 470},
		DiscardRemote: Coordinates{X: 100, Y: 250},
		PrizeLocal:    Coordinates{X: 60, Y: 420},
		PrizeRemote:   Coordinates{X: 1140, Y: 300},

		BenchSpacing:    120,
		HandRowCapacity: 7,
		HandSpacing:     90,
		HandRowSpacing:  40,
		PrizeColumns:    2,
		PrizeSpacingX:   70,
		PrizeSpacingY:   50,
		AttachOffsetX:   -12,
		AttachOffsetY:   14,

		Fallback: Coordinates{X: 640, Y: 360},
	}
}

// withDefaults fills the fields a zero value would break (division by zero
// in row math).
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HandRowCapacity <= 0 {
		c.HandRowCapacity = def.HandRowCapacity
	}
	if c.PrizeColumns <= 0 {
		c.PrizeColumns = def.PrizeColumns
	}
	return c
}

type sideAnchors struct {
	active, bench, hand, deck, discard, prize Coordinates
	// rowDirection is -1 when additional rows grow upwards.
	rowDirection float64
}

func (c Config) anchors(local bool) sideAnchors {
	if local {
		return sideAnchors{
			active:       c.ActiveLocal,
			bench:        c.BenchLocal,
			hand:         c.HandLocal,
			deck:         c.DeckLocal,
			discard:      c.DiscardLocal,
			prize:        c.PrizeLocal,
			rowDirection: -1,
		}
	}
	return sideAnchors{
		active:       c.ActiveRemote,
		bench:        c.BenchRemote,
		hand:         c.HandRemote,
		deck:         c.DeckRemote,
		discard:      c.DiscardRemote,
		prize:        c.PrizeRemote,
		rowDirection: 1,
	}
}
