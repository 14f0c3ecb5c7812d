package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookup(kvs []string, k string) (string, bool) {
	for _, kv := range kvs {
		if len(kv) > len(k) && kv[:len(k)+1] == k+"=" {
			return kv[len(k)+1:], true
		}
	}
	return "", false
}

func TestMergeOrderAndExpansion(t *testing.T) {
	t.Setenv("PATIENTLY_TEST_BASE", "base")
	e := New().WithSet(JobID, "4").WithSet(QueueDir, "/q")

	out := e.Merge([]string{
		"A=${PATIENTLY_TEST_BASE}-a",
		"B=${A}/${PATIENTLY_JOB_ID}",
		"PATIENTLY_JOB_ID=99",
		"=skipped",
		"novalue",
	})

	v, ok := lookup(out, "A")
	assert.True(t, ok)
	assert.Equal(t, "base-a", v)
	v, _ = lookup(out, "B")
	assert.Equal(t, "base-a/4", v)
	v, _ = lookup(out, JobID)
	assert.Equal(t, "4", v, "job variables cannot be overridden")
	_, ok = lookup(out, "novalue")
	assert.False(t, ok)

	for i := 1; i < len(out); i++ {
		prev, _, _ := strings.Cut(out[i-1], "=")
		cur, _, _ := strings.Cut(out[i], "=")
		assert.Less(t, prev, cur)
	}
}

func TestMergeInheritsOS(t *testing.T) {
	t.Setenv("PATIENTLY_TEST_INHERIT", "yes")
	v, ok := lookup(New().Merge(nil), "PATIENTLY_TEST_INHERIT")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
}
