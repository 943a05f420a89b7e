package dataset

import "slices"

// Group is the set of rows sharing one key value.
type Group struct {
	Key  string
	Rows []int
}

// GroupBy partitions rows by the string value of col. Rows with a missing
// key are left out. Groups are returned sorted by key and rows keep their
// dataset order.
func (d *Dataset) GroupBy(col string) []Group {
	if !d.Has(col) {
		return nil
	}
	byKey := make(map[string][]int)
	for i := 0; i < d.Len(); i++ {
		k, ok := d.String(i, col)
		if !ok {
			continue
		}
		byKey[k] = append(byKey[k], i)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	groups := make([]Group, len(keys))
	for i, k := range keys {
		groups[i] = Group{Key: k, Rows: byKey[k]}
	}
	return groups
}
