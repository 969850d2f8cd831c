package mvcc

import "sort"

// memStore is a trivial OrderedStore backed by a sorted slice, just enough
// to exercise Storage's versioned key layout without pulling in pkg/btree.
type memStore struct {
	keys [][]byte
	vals [][]byte
}

func (m *memStore) Get(key []byte) ([]byte, bool) {
	i := m.find(key)
	if i < len(m.keys) && string(m.keys[i]) == string(key) {
		return m.vals[i], true
	}
	return nil, false
}

func (m *memStore) Insert(key, val []byte) {
	i := m.find(key)
	if i < len(m.keys) && string(m.keys[i]) == string(key) {
		m.vals[i] = val
		return
	}
	m.keys = append(m.keys, nil)
	m.vals = append(m.vals, nil)
	copy(m.keys[i+1:], m.keys[i:])
	copy(m.vals[i+1:], m.vals[i:])
	m.keys[i] = key
	m.vals[i] = val
}

func (m *memStore) Scan(start []byte, callback func(key, val []byte) bool) {
	i := m.find(start)
	for ; i < len(m.keys); i++ {
		if !callback(m.keys[i], m.vals[i]) {
			return
		}
	}
}

func (m *memStore) find(key []byte) int {
	return sort.Search(len(m.keys), func(i int) bool { return string(m.keys[i]) >= string(key) })
}
