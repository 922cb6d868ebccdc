package shipper_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/stretchr/testify/assert"
)

func TestNewReferenceID_Shape(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := shipper.NewReferenceID()
		assert.Len(t, id, shipper.ReferenceIDLength)
		assert.True(t, shipper.ValidReferenceID(id), id)
	}
}

func TestNewReferenceID_UsesWholeAlphabet(t *testing.T) {
	seen := make(map[rune]bool)
	for i := 0; i < 2000; i++ {
		for _, c := range shipper.NewReferenceID() {
			seen[c] = true
		}
	}
	assert.Len(t, seen, 36)
}

func TestNewReferenceID_Concurrent(t *testing.T) {
	const n = 500
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = shipper.NewReferenceID()
		}(i)
	}
	wg.Wait()

	unique := make(map[string]struct{}, n)
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	// 500 draws from 36^7 values: a collision here means the source is broken
	assert.Len(t, unique, n)
}

func TestValidReferenceID(t *testing.T) {
	assert.True(t, shipper.ValidReferenceID("AB12CD3"))
	assert.False(t, shipper.ValidReferenceID("ab12cd3"))
	assert.False(t, shipper.ValidReferenceID("AB12CD"))
	assert.False(t, shipper.ValidReferenceID("AB12CD34"))
	assert.False(t, shipper.ValidReferenceID("AB-2CD3"))
	assert.False(t, shipper.ValidReferenceID(strings.Repeat(" ", 7)))
}
