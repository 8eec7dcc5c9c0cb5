package presence

import (
	"math/rand/v2"
	"strconv"
)

var Palette = []string{
	"#FF6B6B", "#FF8E53", "#FFC93C", "#6BCB77", "#4D96FF",
	"#9B59B6", "#E056FD", "#FF7979", "#F8B500", "#00D2D3",
	"#54A0FF", "#5F27CD", "#C44569", "#F78FB3", "#3DC1D3",
}

var adjectives = []string{
	"Sandy", "Crusty", "Snappy", "Sideways", "Bubbles", "Salty", "Pinchy",
	"Scuttles", "Clicky", "Splashy", "Tide", "Coral", "Shell", "Reef", "Wave",
	"Kelp", "Barnacle", "Driftwood", "Seaweed", "Foam", "Surf", "Brine", "Murky",
}

var nouns = []string{
	"Claw", "Pincer", "Walker", "Dancer", "Dweller", "Lurker", "Scuttler",
	"Crawler", "Snapper", "Bubbler", "Clacker", "Waddle", "Scramble", "Shuffle",
	"Mover", "Glider", "Strider", "Prowler", "Wanderer", "Nomad", "Drifter",
}

// Spawn area for new avatars, half-open on the upper bounds.
const (
	SpawnMinX = 200.0
	SpawnMaxX = 800.0
	SpawnMinY = 200.0
	SpawnMaxY = 600.0
)

// GenerateHandle returns <Adjective><Noun><0-98>.
func GenerateHandle(r *rand.Rand) string {
	adj := adjectives[r.IntN(len(adjectives))]
	noun := nouns[r.IntN(len(nouns))]
	return adj + noun + strconv.Itoa(r.IntN(99))
}

func PickColor(r *rand.Rand) string {
	return Palette[r.IntN(len(Palette))]
}

func SpawnPosition(r *rand.Rand) (x, y float64) {
	x = SpawnMinX + r.Float64()*(SpawnMaxX-SpawnMinX)
	y = SpawnMinY + r.Float64()*(SpawnMaxY-SpawnMinY)
	return x, y
}
