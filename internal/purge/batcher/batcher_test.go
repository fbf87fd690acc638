package batcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page-%d/", i)
	}
	return urls
}

func TestSplit(t *testing.T) {
	t.Run("empty input yields no batches", func(t *testing.T) {
		batches, err := Split(nil, 30)
		require.NoError(t, err)
		assert.Nil(t, batches)
	})

	t.Run("fewer URLs than batch size yields one batch", func(t *testing.T) {
		urls := makeURLs(5)
		batches, err := Split(urls, 30)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, urls, batches[0])
	})

	t.Run("exact multiple yields full batches", func(t *testing.T) {
		batches, err := Split(makeURLs(60), 30)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Len(t, batches[0], 30)
		assert.Len(t, batches[1], 30)
	})

	t.Run("75 URLs at batch size 30 yields 30, 30, 15", func(t *testing.T) {
		batches, err := Split(makeURLs(75), 30)
		require.NoError(t, err)
		require.Len(t, batches, 3)
		assert.Len(t, batches[0], 30)
		assert.Len(t, batches[1], 30)
		assert.Len(t, batches[2], 15)
	})

	t.Run("union of batches equals input", func(t *testing.T) {
		urls := makeURLs(47)
		batches, err := Split(urls, 10)
		require.NoError(t, err)

		var joined []string
		for _, b := range batches {
			joined = append(joined, b...)
		}
		assert.Equal(t, urls, joined)
	})

	t.Run("single URL per batch", func(t *testing.T) {
		batches, err := Split(makeURLs(3), 1)
		require.NoError(t, err)
		assert.Len(t, batches, 3)
	})

	t.Run("zero batch size is rejected", func(t *testing.T) {
		_, err := Split(makeURLs(3), 0)
		assert.Error(t, err)
	})

	t.Run("negative batch size is rejected", func(t *testing.T) {
		_, err := Split(makeURLs(3), -1)
		assert.Error(t, err)
	})

	t.Run("batch size above the API ceiling is rejected", func(t *testing.T) {
		_, err := Split(makeURLs(3), 31)
		assert.Error(t, err)
	})
}
