package habits

import (
	"errors"
	"hash/fnv"
	"math/rand/v2"
)

var errEmptyPool = errors.New("habits: empty pool")

// Picker chooses one habit from a non-empty pool. key identifies the draw
// (user, day and category) for pickers that want to be stable.
type Picker interface {
	Pick(key string, pool []string) (string, error)
}

// HashPicker picks by FNV-1a hash of key, so the same user sees the same
// habit for a category throughout a day.
type HashPicker struct{}

func (HashPicker) Pick(key string, pool []string) (string, error) {
	if len(pool) == 0 {
		return "", errEmptyPool
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return pool[h.Sum32()%uint32(len(pool))], nil
}

// RandomPicker picks uniformly at random.
type RandomPicker struct{}

func (RandomPicker) Pick(key string, pool []string) (string, error) {
	if len(pool) == 0 {
		return "", errEmptyPool
	}
	return pool[rand.IntN(len(pool))], nil
}

// PickerByName maps a config value to a Picker; anything but "random" is
// the hash picker.
func PickerByName(name string) Picker {
	if name == "random" {
		return RandomPicker{}
	}
	return HashPicker{}
}
